package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{DefaultProvider: "alchemy", MinSwitchInterval: 30 * time.Second}
}

func healthySnap(name string, avg time.Duration) Snapshot {
	return Snapshot{Provider: name, Observations: 5, AvgResponseTime: avg, Healthy: true}
}

func unhealthySnap(name, reason string) Snapshot {
	return Snapshot{Provider: name, Observations: 5, Healthy: false, Reason: reason}
}

func TestPolicyStaysOnHealthyActive(t *testing.T) {
	d := testPolicy().Evaluate(
		healthySnap("alchemy", time.Second),
		[]Snapshot{healthySnap("chainstack", 10*time.Millisecond)},
		time.Hour,
	)

	assert.False(t, d.Switch)
	assert.Empty(t, d.Target)
}

func TestPolicySwitchesToHealthyCandidate(t *testing.T) {
	d := testPolicy().Evaluate(
		unhealthySnap("alchemy", ReasonConsecutiveErrors),
		[]Snapshot{healthySnap("chainstack", time.Second)},
		time.Hour,
	)

	require.True(t, d.Switch)
	assert.Equal(t, "chainstack", d.Target)
	assert.Equal(t, ReasonConsecutiveErrors, d.Reason)
}

func TestPolicyPrefersDefaultProvider(t *testing.T) {
	// Active is chainstack; alchemy (the default) is healthy but slower than
	// a third candidate. The default still wins.
	d := testPolicy().Evaluate(
		unhealthySnap("chainstack", ReasonSlowResponse),
		[]Snapshot{
			healthySnap("quicknode", 10*time.Millisecond),
			healthySnap("alchemy", time.Second),
		},
		time.Hour,
	)

	require.True(t, d.Switch)
	assert.Equal(t, "alchemy", d.Target)
}

func TestPolicyPicksFastestWhenDefaultUnavailable(t *testing.T) {
	d := testPolicy().Evaluate(
		unhealthySnap("alchemy", ReasonConsecutiveErrors),
		[]Snapshot{
			healthySnap("quicknode", 500*time.Millisecond),
			healthySnap("chainstack", 100*time.Millisecond),
			unhealthySnap("infura", ReasonConsecutiveErrors),
		},
		time.Hour,
	)

	require.True(t, d.Switch)
	assert.Equal(t, "chainstack", d.Target)
}

func TestPolicyBreaksTiesByName(t *testing.T) {
	d := testPolicy().Evaluate(
		unhealthySnap("alchemy", ReasonConsecutiveErrors),
		[]Snapshot{
			healthySnap("zeta", 100*time.Millisecond),
			healthySnap("beta", 100*time.Millisecond),
		},
		time.Hour,
	)

	require.True(t, d.Switch)
	assert.Equal(t, "beta", d.Target)
}

func TestPolicyStaysWhenNoHealthyCandidate(t *testing.T) {
	d := testPolicy().Evaluate(
		unhealthySnap("alchemy", ReasonConsecutiveErrors),
		[]Snapshot{
			unhealthySnap("chainstack", ReasonConsecutiveErrors),
			unhealthySnap("quicknode", ReasonSlowResponse),
		},
		time.Hour,
	)

	assert.False(t, d.Switch)
	assert.Empty(t, d.Target)
	assert.False(t, d.Suppressed)
}

func TestPolicyCooldownSuppressesSwitch(t *testing.T) {
	p := testPolicy()

	for _, since := range []time.Duration{0, time.Second, 29 * time.Second} {
		d := p.Evaluate(
			unhealthySnap("alchemy", ReasonConsecutiveErrors),
			[]Snapshot{healthySnap("chainstack", time.Second)},
			since,
		)

		assert.False(t, d.Switch, "since=%s", since)
		require.True(t, d.Suppressed, "since=%s", since)
		// The would-switch target is still observable for logging.
		assert.Equal(t, "chainstack", d.Target)
	}

	d := p.Evaluate(
		unhealthySnap("alchemy", ReasonConsecutiveErrors),
		[]Snapshot{healthySnap("chainstack", time.Second)},
		30*time.Second,
	)
	assert.True(t, d.Switch)
}

func TestPolicyNeverSelectsActiveProvider(t *testing.T) {
	// A stale snapshot of the active provider may appear in the candidate
	// list; it must never be chosen.
	d := testPolicy().Evaluate(
		unhealthySnap("chainstack", ReasonConsecutiveErrors),
		[]Snapshot{healthySnap("chainstack", time.Nanosecond)},
		time.Hour,
	)

	assert.False(t, d.Switch)
}
