package health

import (
	"sort"
	"time"
)

// Decision is the verdict of one policy evaluation. When Switch is false but
// Target is set, the policy wanted to switch and the cool-down suppressed it;
// callers may log the suppressed target but must not act on it.
type Decision struct {
	Switch bool
	Target string
	// Reason carries the active provider's unhealthy reason, or an
	// explanation for staying put.
	Reason string
	// Suppressed is true when the cool-down guard vetoed a switch.
	Suppressed bool
}

const (
	stayHealthy     = "active_healthy"
	stayNoCandidate = "no_healthy_candidate"
)

// Policy selects a failover target for an unhealthy active provider.
// Evaluate is pure: it reads the given snapshots and nothing else, so tests
// can drive it with synthetic inputs.
type Policy struct {
	// DefaultProvider is preferred as a failover target when healthy.
	DefaultProvider string
	// MinSwitchInterval is the cool-down between genuine switches.
	MinSwitchInterval time.Duration
}

// Evaluate decides whether to stay on the active provider or move to one of
// the candidates. The cool-down guard runs after target selection so the
// would-switch signal survives into the Decision even when suppressed.
func (p Policy) Evaluate(active Snapshot, candidates []Snapshot, sinceLastSwitch time.Duration) Decision {
	if active.Healthy {
		return Decision{Reason: stayHealthy}
	}

	target := p.selectTarget(active.Provider, candidates)
	if target == "" {
		// Nothing healthy to move to; swapping to an equally broken
		// provider just burns the cool-down.
		return Decision{Reason: stayNoCandidate}
	}

	d := Decision{Switch: true, Target: target, Reason: active.Reason}
	if sinceLastSwitch < p.MinSwitchInterval {
		d.Switch = false
		d.Suppressed = true
	}
	return d
}

// selectTarget picks the healthy candidate to fail over to: the default
// provider when it qualifies, otherwise the lowest average response time,
// ties broken by name for determinism.
func (p Policy) selectTarget(activeName string, candidates []Snapshot) string {
	healthy := make([]Snapshot, 0, len(candidates))
	for _, c := range candidates {
		if c.Provider == activeName || !c.Healthy {
			continue
		}
		if c.Provider == p.DefaultProvider {
			return c.Provider
		}
		healthy = append(healthy, c)
	}
	if len(healthy) == 0 {
		return ""
	}

	sort.Slice(healthy, func(i, j int) bool {
		if healthy[i].AvgResponseTime != healthy[j].AvgResponseTime {
			return healthy[i].AvgResponseTime < healthy[j].AvgResponseTime
		}
		return healthy[i].Provider < healthy[j].Provider
	})
	return healthy[0].Provider
}
