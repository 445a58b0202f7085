package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/streamx-network/streamx/pkg/db/archive"
	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/sequence"
)

// Archive persists emitted blocks to ClickHouse.
type Archive struct {
	store  *archive.Store
	active func() string
}

// NewArchive creates the archive sink. active reports the provider the
// block was fetched from at emission time.
func NewArchive(store *archive.Store, active func() string) *Archive {
	return &Archive{store: store, active: active}
}

func (a *Archive) Emit(ctx context.Context, block *rpc.Block, class sequence.Classification) error {
	number, err := block.Number()
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	timestamp, _ := block.Timestamp()
	row := archive.Row{
		Number:     number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		Timestamp:  timestamp,
		ReceivedAt: block.ReceivedAt,
		Provider:   a.active(),
		TxCount:    uint32(block.TxCount()),
		Tag:        class.String(),
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now()
	}
	if err := a.store.Insert(ctx, row); err != nil {
		return fmt.Errorf("archive block %d: %w", number, err)
	}
	return nil
}
