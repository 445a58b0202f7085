// Package prober keeps health windows of standby providers fresh. The
// streaming loop only observes the active provider, so without probes a
// standby's window would stay empty (or stale) and the switch policy would
// be choosing targets blind.
package prober

import (
	"context"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/health"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/streamer"
)

// DefaultTimeout bounds a single probe request.
const DefaultTimeout = 10 * time.Second

// Prober issues concurrent head requests against every standby provider and
// records the outcome in that provider's health window. Recorder writes are
// internally serialized, so probe goroutines and the streaming loop can
// share recorders safely.
type Prober struct {
	logger  *zap.Logger
	set     *provider.Set
	fetcher streamer.Fetcher
	pool    pond.Pool
	timeout time.Duration
}

// New creates a Prober with a worker pool sized to the provider count.
func New(logger *zap.Logger, set *provider.Set, fetcher streamer.Fetcher) *Prober {
	workers := len(set.Names())
	if workers < 1 {
		workers = 1
	}
	return &Prober{
		logger:  logger,
		set:     set,
		fetcher: fetcher,
		pool:    pond.NewPool(workers),
		timeout: DefaultTimeout,
	}
}

// ProbeStandby probes all non-active providers and blocks until every probe
// finished or ctx was cancelled.
func (p *Prober) ProbeStandby(ctx context.Context) {
	active := p.set.Active().Name

	group := p.pool.NewGroupContext(ctx)
	for _, name := range p.set.Names() {
		if name == active {
			continue
		}
		group.Submit(func() {
			p.probe(ctx, name)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		p.logger.Warn("Probe group failed", zap.Error(err))
	}
}

// probe runs one timed head request and folds the result into the
// provider's window. A probe has no block payload, so it contributes
// latency and error signals only.
func (p *Prober) probe(ctx context.Context, name string) {
	prov, ok := p.set.Get(name)
	if !ok {
		return
	}
	recorder := p.set.Recorder(name)
	if recorder == nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	head, elapsed, err := p.fetcher.Head(pctx, prov)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Debug("Standby probe failed",
			zap.String("provider", name), zap.Error(err))
		recorder.Record(health.Observation{ResponseTime: elapsed, Err: true})
		return
	}

	p.logger.Debug("Standby probe ok",
		zap.String("provider", name),
		zap.Uint64("head", head),
		zap.Duration("elapsed", elapsed))
	recorder.Record(health.Observation{ResponseTime: elapsed})
}

// Stop tears down the worker pool. Pending probes are awaited.
func (p *Prober) Stop() {
	p.pool.StopAndWait()
}
