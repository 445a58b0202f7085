package rpc

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/streamx-network/streamx/pkg/provider"
)

// ProviderFetcher resolves providers to cached RPC clients. It backs both
// the streaming loop (active provider) and the standby prober, so the client
// cache must be safe for concurrent use.
type ProviderFetcher struct {
	factory Factory
	clients *xsync.Map[string, Client]
}

// NewProviderFetcher returns a fetcher building clients from the factory on
// first use per provider.
func NewProviderFetcher(factory Factory) *ProviderFetcher {
	return &ProviderFetcher{
		factory: factory,
		clients: xsync.NewMap[string, Client](),
	}
}

func (f *ProviderFetcher) client(p *provider.Provider) Client {
	if c, ok := f.clients.Load(p.Name); ok {
		return c
	}
	// Racing goroutines may build an extra client; last write wins and the
	// spare is garbage collected.
	c := f.factory.NewClient(p.URL)
	f.clients.Store(p.Name, c)
	return c
}

// Head returns the provider's current chain head.
func (f *ProviderFetcher) Head(ctx context.Context, p *provider.Provider) (uint64, time.Duration, error) {
	return f.client(p).BlockNumber(ctx)
}

// Block fetches one block header from the provider.
func (f *ProviderFetcher) Block(ctx context.Context, p *provider.Provider, number uint64) (*Block, time.Duration, error) {
	return f.client(p).BlockByNumber(ctx, number)
}
