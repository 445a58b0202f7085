// Package clickhouse manages the ClickHouse connection used by the block
// archive. The archive is an optional sink; the streaming core runs fine
// without it.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/retry"
	"github.com/streamx-network/streamx/pkg/utils"
)

// Client holds an open ClickHouse connection.
type Client struct {
	Logger   *zap.Logger
	Db       driver.Conn
	Database string
}

// New opens a ClickHouse connection configured from the environment:
//   - CLICKHOUSE_ADDR: host:port (default "localhost:9000")
//   - CLICKHOUSE_USER / CLICKHOUSE_PASSWORD
//   - CLICKHOUSE_DATABASE: target database (default "streamx")
//
// Connection establishment retries with backoff; a cold ClickHouse at
// service start is normal in container deployments.
func New(ctx context.Context, logger *zap.Logger) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	addr := utils.Env("CLICKHOUSE_ADDR", "localhost:9000")
	database := utils.Env("CLICKHOUSE_DATABASE", "streamx")

	options := &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: utils.Env("CLICKHOUSE_USER", "default"),
			Password: utils.Env("CLICKHOUSE_PASSWORD", ""),
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: utils.EnvDuration("CLICKHOUSE_CONN_MAX_LIFETIME", time.Hour),
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	client := &Client{Logger: logger, Database: database}

	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, err := clickhouse.Open(options)
		if err != nil {
			return fmt.Errorf("failed to open clickhouse connection: %w", err)
		}
		if err := conn.Ping(connCtx); err != nil {
			return fmt.Errorf("failed to ping clickhouse: %w", err)
		}
		client.Db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := client.ensureDatabase(ctx); err != nil {
		return nil, err
	}

	logger.Info("ClickHouse connected",
		zap.String("addr", addr),
		zap.String("database", database))
	return client, nil
}

func (c *Client) ensureDatabase(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, c.Database)
	if err := c.Db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create database %s: %w", c.Database, err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.Db.Close()
}
