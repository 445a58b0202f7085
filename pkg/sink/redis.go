package sink

import (
	"context"
	"fmt"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/redis"
	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/sequence"
)

const (
	// BlockStream is the capped redis stream blocks are appended to.
	BlockStream = "streamx:blocks"
	// BlockChannel is the Pub/Sub channel live consumers subscribe to.
	BlockChannel = "streamx:block.emitted"
)

// BlockEvent is the payload published for every emitted block.
type BlockEvent struct {
	Number     uint64 `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Timestamp  int64  `json:"timestamp"`
	TxCount    int    `json:"tx_count"`
	Sequence   string `json:"sequence"`
}

// Redis appends emitted blocks to a stream and publishes them on Pub/Sub.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Emit(ctx context.Context, block *rpc.Block, class sequence.Classification) error {
	number, err := block.Number()
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	timestamp, _ := block.Timestamp()
	event := BlockEvent{
		Number:     number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		Timestamp:  timestamp.Unix(),
		TxCount:    block.TxCount(),
		Sequence:   class.String(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal block event: %w", err)
	}

	if _, err := r.client.XAdd(ctx, BlockStream, map[string]interface{}{
		"number":  number,
		"payload": string(payload),
	}); err != nil {
		return fmt.Errorf("append block %d to stream: %w", number, err)
	}

	// Pub/Sub is fire-and-forget; stream append is the durable path.
	r.client.Publish(ctx, BlockChannel, string(payload))
	return nil
}
