package prober

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/rpc"
)

type stubFetcher struct {
	mu     sync.Mutex
	heads  map[string]uint64
	errs   map[string]error
	probed []string
}

func (f *stubFetcher) Head(_ context.Context, p *provider.Provider) (uint64, time.Duration, error) {
	f.mu.Lock()
	f.probed = append(f.probed, p.Name)
	f.mu.Unlock()
	if err := f.errs[p.Name]; err != nil {
		return 0, 5 * time.Millisecond, err
	}
	return f.heads[p.Name], 5 * time.Millisecond, nil
}

func (f *stubFetcher) Block(context.Context, *provider.Provider, uint64) (*rpc.Block, time.Duration, error) {
	panic("prober never fetches blocks")
}

func (f *stubFetcher) probedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

func testSet(t *testing.T) *provider.Set {
	t.Helper()
	cfg := config.Default()
	cfg.Providers = map[string]config.ProviderConfig{
		"alchemy":    {URL: "https://alchemy.example"},
		"chainstack": {URL: "https://chainstack.example"},
		"quicknode":  {URL: "https://quicknode.example"},
	}
	set, err := provider.New(cfg, nil)
	require.NoError(t, err)
	return set
}

func TestProbeStandbySkipsActiveProvider(t *testing.T) {
	set := testSet(t)
	fetcher := &stubFetcher{heads: map[string]uint64{"chainstack": 10, "quicknode": 11}}

	p := New(zaptest.NewLogger(t), set, fetcher)
	defer p.Stop()
	p.ProbeStandby(context.Background())

	probed := fetcher.probedNames()
	assert.ElementsMatch(t, []string{"chainstack", "quicknode"}, probed)

	// The active provider's window stays untouched.
	assert.Equal(t, 0, set.Recorder("alchemy").Snapshot().Observations)
	assert.Equal(t, 1, set.Recorder("chainstack").Snapshot().Observations)
}

func TestProbeRecordsFailures(t *testing.T) {
	set := testSet(t)
	fetcher := &stubFetcher{
		heads: map[string]uint64{"quicknode": 11},
		errs:  map[string]error{"chainstack": errors.New("dial tcp: timeout")},
	}

	p := New(zaptest.NewLogger(t), set, fetcher)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		p.ProbeStandby(context.Background())
	}

	snap := set.Recorder("chainstack").Snapshot()
	assert.False(t, snap.Healthy)
	assert.Equal(t, 3, snap.ConsecutiveErrors)

	assert.True(t, set.Recorder("quicknode").Snapshot().Healthy)
}
