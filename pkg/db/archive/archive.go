// Package archive persists emitted blocks to ClickHouse for later
// inspection. Stream correctness never depends on it: the streamer resumes
// from "no prior block" after a restart by design.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/db/clickhouse"
)

const blocksTable = "blocks"

// Row is one archived block.
type Row struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	ReceivedAt time.Time
	Provider   string
	TxCount    uint32
	Tag        string
}

// Store writes emitted blocks to the blocks table.
type Store struct {
	client *clickhouse.Client
	logger *zap.Logger
}

// New creates the store and its table.
func New(ctx context.Context, client *clickhouse.Client, logger *zap.Logger) (*Store, error) {
	s := &Store{client: client, logger: logger}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	logger.Info("Block archive ready",
		zap.String("database", client.Database),
		zap.String("table", blocksTable))
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	// ReplacingMergeTree on number: a block re-emitted after a restart
	// dedupes instead of duplicating.
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			number      UInt64,
			hash        String,
			parent_hash String,
			timestamp   DateTime,
			received_at DateTime64(3),
			provider    String,
			tx_count    UInt32,
			tag         String
		) ENGINE = ReplacingMergeTree(received_at)
		ORDER BY (number)
	`, s.client.Database, blocksTable)
	if err := s.client.Db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", blocksTable, err)
	}
	return nil
}

// Insert archives one block.
func (s *Store) Insert(ctx context.Context, row Row) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."%s"
			(number, hash, parent_hash, timestamp, received_at, provider, tx_count, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.client.Database, blocksTable)
	return s.client.Db.Exec(ctx, query,
		row.Number,
		row.Hash,
		row.ParentHash,
		row.Timestamp,
		row.ReceivedAt,
		row.Provider,
		row.TxCount,
		row.Tag,
	)
}

// LastNumber returns the highest archived block number, or ok=false when the
// archive is empty.
func (s *Store) LastNumber(ctx context.Context) (uint64, bool, error) {
	query := fmt.Sprintf(`SELECT max(number), count() FROM "%s"."%s"`, s.client.Database, blocksTable)

	var maxNumber, count uint64
	if err := s.client.Db.QueryRow(ctx, query).Scan(&maxNumber, &count); err != nil {
		return 0, false, fmt.Errorf("query last archived block: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return maxNumber, true, nil
}
