// Package sink implements the block delivery targets the streamer fans out
// to: structured logs, a redis stream, and the ClickHouse archive.
package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/sequence"
)

// Log writes every emitted block to the service log.
type Log struct {
	Logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{Logger: logger}
}

func (l *Log) Emit(_ context.Context, block *rpc.Block, class sequence.Classification) error {
	number, _ := block.Number()
	timestamp, _ := block.Timestamp()
	l.Logger.Info("block",
		zap.Uint64("number", number),
		zap.String("hash", block.Hash),
		zap.String("parent_hash", block.ParentHash),
		zap.Time("timestamp", timestamp),
		zap.Int("tx_count", block.TxCount()),
		zap.String("sequence", class.String()),
	)
	return nil
}

// Target is anything that can receive an emitted block.
type Target interface {
	Emit(ctx context.Context, block *rpc.Block, class sequence.Classification) error
}

// Multi fans one emission out to several sinks. Every sink sees the block;
// the first error is returned after all sinks ran.
type Multi struct {
	sinks []Target
}

func NewMulti(sinks ...Target) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Emit(ctx context.Context, block *rpc.Block, class sequence.Classification) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, block, class); err != nil && first == nil {
			first = err
		}
	}
	return first
}
