package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/db/clickhouse"
	"github.com/streamx-network/streamx/pkg/prober"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/redis"
	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/streamer"
)

// User is an API user allowed to log in to the status endpoints.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type App struct {
	// Resolved service configuration
	Config *config.Config

	// Provider set and the RPC fetcher shared by streamer and prober
	Set     *provider.Set
	Fetcher *rpc.ProviderFetcher

	// Streaming loop
	Streamer *streamer.Controller

	// Standby prober, driven by Cron
	Prober *prober.Prober
	Cron   *cron.Cron

	// Redis Client (for the block stream and WebSocket feed, optional)
	RedisClient *redis.Client

	// ClickHouse Client (for the block archive, optional)
	ArchiveDB *clickhouse.Client

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// Start runs the streaming loop, the probe scheduler and the HTTP server,
// then blocks until ctx is cancelled and shuts everything down in order.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Streamer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("Streaming loop exited", zap.Error(err))
		}
	}()

	a.Cron.Start()
	a.Logger.Info("Probe scheduler started", zap.Duration("interval", a.Config.ProbeInterval))

	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	a.Logger.Info("Stopping probe scheduler")
	<-a.Cron.Stop().Done()
	a.Prober.Stop()

	if a.RedisClient != nil {
		a.Logger.Info("Closing Redis connection")
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	if a.ArchiveDB != nil {
		a.Logger.Info("Closing ClickHouse connection")
		if err := a.ArchiveDB.Close(); err != nil {
			a.Logger.Error("Failed to close ClickHouse connection", zap.Error(err))
		}
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
