// Package provider owns the fixed collection of configured node providers,
// tracks which one is active, and applies failover switches.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/health"
)

// ErrUnknownProvider is returned by SwitchTo for a name that was never
// configured. The policy only selects from the set's own candidates, so
// seeing this at runtime means an internal invariant broke.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider is one configured remote node endpoint. Identity is immutable
// after construction; runtime state (active flag, switch timestamp) lives in
// the owning Set.
type Provider struct {
	Name string
	URL  string
}

// Set holds the configured providers, one health recorder each, and the
// identity of the active provider. Reads and switches are safe for
// concurrent use: the streaming loop drives switches while the status API
// reads snapshots.
type Set struct {
	providers map[string]*Provider
	recorders *xsync.Map[string, *health.Recorder]
	defaultP  string

	mu         sync.RWMutex
	activeName string
	lastSwitch time.Time

	now func() time.Time
}

// New builds a Set from configuration. The default provider starts active.
// A nil clock falls back to time.Now; tests inject a fake for determinism.
func New(cfg *config.Config, clock func() time.Time) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}

	thresholds := health.Thresholds{
		ErrorThreshold:     cfg.ErrorThreshold,
		MaxAvgResponseTime: cfg.MaxAvgResponseTime,
		MaxBlockDelay:      cfg.ExpectedBlockTime + cfg.MaxBlockProcessingTime,
	}

	s := &Set{
		providers:  make(map[string]*Provider, len(cfg.Providers)),
		recorders:  xsync.NewMap[string, *health.Recorder](),
		defaultP:   cfg.DefaultProvider,
		activeName: cfg.DefaultProvider,
		lastSwitch: clock(),
		now:        clock,
	}
	for name, pc := range cfg.Providers {
		s.providers[name] = &Provider{Name: name, URL: pc.URL}
		s.recorders.Store(name, health.NewRecorder(name, cfg.HealthWindow, thresholds))
	}
	return s, nil
}

// Active returns the currently active provider.
func (s *Set) Active() *Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providers[s.activeName]
}

// Default returns the configured default provider name.
func (s *Set) Default() string {
	return s.defaultP
}

// Names returns all configured provider names in lexical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a configured provider by name.
func (s *Set) Get(name string) (*Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Recorder returns the health recorder for the named provider, or nil when
// the name is unknown.
func (s *Set) Recorder(name string) *health.Recorder {
	r, _ := s.recorders.Load(name)
	return r
}

// SwitchTo makes the named provider active and stamps the switch time.
// Switching to the already-active provider is a no-op that leaves the
// timestamp untouched, so the cool-down only applies to genuine transitions.
// The outgoing provider's window is reset; it re-qualifies through fresh
// probe data instead of staying pinned on stale failures.
func (s *Set) SwitchTo(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if name == s.activeName {
		return nil
	}

	previous := s.activeName
	s.activeName = name
	s.lastSwitch = s.now()

	if r, ok := s.recorders.Load(previous); ok {
		r.Reset()
	}
	return nil
}

// SinceLastSwitch returns the elapsed time since the last genuine switch.
func (s *Set) SinceLastSwitch() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().Sub(s.lastSwitch)
}

// LastSwitch returns the time of the last genuine switch (or construction).
func (s *Set) LastSwitch() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSwitch
}

// Snapshots returns current health snapshots for every provider, in lexical
// name order for deterministic policy input.
func (s *Set) Snapshots() []health.Snapshot {
	names := s.Names()
	out := make([]health.Snapshot, 0, len(names))
	for _, name := range names {
		if r, ok := s.recorders.Load(name); ok {
			out = append(out, r.Snapshot())
		}
	}
	return out
}

// ActiveSnapshot returns the health snapshot of the active provider.
func (s *Set) ActiveSnapshot() health.Snapshot {
	return s.Recorder(s.Active().Name).Snapshot()
}
