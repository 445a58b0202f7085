package streamer

import (
	"context"
	"time"

	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/rpc"
	"github.com/streamx-network/streamx/pkg/sequence"
)

// Fetcher pulls chain data from a specific provider. Both calls report the
// elapsed request time so the controller can feed the health window; a
// transport failure still returns a meaningful elapsed value.
type Fetcher interface {
	Head(ctx context.Context, p *provider.Provider) (uint64, time.Duration, error)
	Block(ctx context.Context, p *provider.Provider, number uint64) (*rpc.Block, time.Duration, error)
}

// Validator runs shallow integrity checks on a fetched block and extracts
// the fields the controller needs for sequencing and delay computation.
type Validator interface {
	// Validate reports whether the block carries all required fields in
	// decodable form. Verdicts feed health tracking; they do not gate
	// emission.
	Validate(b *rpc.Block) bool
	// Number extracts the block number.
	Number(b *rpc.Block) (uint64, error)
	// CreationTime extracts the chain-reported creation timestamp.
	CreationTime(b *rpc.Block) (time.Time, error)
}

// Sink receives every accepted block together with its sequence
// classification. Sink failures are logged by the controller but never stop
// the stream.
type Sink interface {
	Emit(ctx context.Context, b *rpc.Block, tag sequence.Classification) error
}

// Clock abstracts time for deterministic tests. Pause must return early when
// the context is cancelled.
type Clock interface {
	Now() time.Time
	Pause(ctx context.Context, d time.Duration)
}

// SystemClock is the real-time Clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
