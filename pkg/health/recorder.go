// Package health tracks per-provider health over a rolling observation
// window and decides when the active provider should be swapped out.
package health

import (
	"sync"
	"time"
)

// Unhealthy reasons reported in a Snapshot.
const (
	ReasonConsecutiveErrors  = "consecutive_errors"
	ReasonSlowResponse       = "slow_response"
	ReasonBlockDelay         = "block_delay"
	ReasonValidationFailures = "validation_failures"
)

// Observation is the outcome of a single fetch (or probe) against a provider.
type Observation struct {
	// ResponseTime is the elapsed wall time of the request, including failed ones.
	ResponseTime time.Duration
	// Err is true when the request failed at the transport level.
	Err bool
	// ValidationFailed is true when the fetched block failed validation.
	ValidationFailed bool
	// BlockDelay is local receipt time minus the block's reported creation
	// time. Only meaningful when HasDelay is set; negative values are
	// clamped to zero on record (clock skew).
	BlockDelay time.Duration
	HasDelay   bool
}

// Thresholds are the limits a window is judged against.
type Thresholds struct {
	// ErrorThreshold marks a provider unhealthy once this many consecutive
	// errors are observed. It also bounds the lookback for validation
	// failures.
	ErrorThreshold int
	// MaxAvgResponseTime is the ceiling on the window's average latency.
	MaxAvgResponseTime time.Duration
	// MaxBlockDelay is the ceiling on the window's average block delay,
	// normally expected block time plus processing slack.
	MaxBlockDelay time.Duration
}

// Snapshot is the aggregate health of one provider over its retained window.
type Snapshot struct {
	Provider           string        `json:"provider"`
	Observations       int           `json:"observations"`
	Errors             int           `json:"errors"`
	ConsecutiveErrors  int           `json:"consecutiveErrors"`
	ValidationFailures int           `json:"validationFailures"`
	AvgResponseTime    time.Duration `json:"avgResponseTime"`
	AvgBlockDelay      time.Duration `json:"avgBlockDelay"`
	Healthy            bool          `json:"healthy"`
	// Reason names the first failing condition when Healthy is false.
	Reason string `json:"reason,omitempty"`
}

// Recorder keeps the most recent N observations for one provider in a
// fixed-capacity ring. Writes are serialized internally so the streaming
// loop and background probes can share a recorder.
type Recorder struct {
	mu         sync.Mutex
	provider   string
	thresholds Thresholds

	ring []Observation
	head int // next write position
	size int
}

// NewRecorder returns a Recorder retaining the last window observations.
func NewRecorder(provider string, window int, thresholds Thresholds) *Recorder {
	if window <= 0 {
		window = 20
	}
	return &Recorder{
		provider:   provider,
		thresholds: thresholds,
		ring:       make([]Observation, window),
	}
}

// Record appends an observation, evicting the oldest when the ring is full.
func (r *Recorder) Record(obs Observation) {
	if obs.BlockDelay < 0 {
		obs.BlockDelay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring[r.head] = obs
	r.head = (r.head + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
}

// Reset discards all retained observations. Used when a provider returns to
// standby after a switch so stale failures do not block switching back later.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

// Snapshot computes the current aggregate over the retained window.
// An empty window reports healthy: a provider that has produced no data yet
// has shown no evidence of a problem.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{Provider: r.provider, Observations: r.size, Healthy: true}
	if r.size == 0 {
		return s
	}

	var (
		totalResponse time.Duration
		totalDelay    time.Duration
		delayCount    int
		errorRun      = true
	)

	// Walk newest to oldest; i is the distance from the most recent observation.
	for i := 0; i < r.size; i++ {
		idx := (r.head - 1 - i + len(r.ring)) % len(r.ring)
		obs := r.ring[idx]

		totalResponse += obs.ResponseTime
		if obs.Err {
			s.Errors++
		} else {
			errorRun = false
		}
		if errorRun {
			s.ConsecutiveErrors++
		}
		if obs.HasDelay {
			totalDelay += obs.BlockDelay
			delayCount++
		}
		// Validation failures only count against health while recent.
		if obs.ValidationFailed && i < r.thresholds.ErrorThreshold {
			s.ValidationFailures++
		}
	}

	s.AvgResponseTime = totalResponse / time.Duration(r.size)
	if delayCount > 0 {
		s.AvgBlockDelay = totalDelay / time.Duration(delayCount)
	}

	switch {
	case r.thresholds.ErrorThreshold > 0 && s.ConsecutiveErrors >= r.thresholds.ErrorThreshold:
		s.Healthy = false
		s.Reason = ReasonConsecutiveErrors
	case r.thresholds.MaxAvgResponseTime > 0 && s.AvgResponseTime > r.thresholds.MaxAvgResponseTime:
		s.Healthy = false
		s.Reason = ReasonSlowResponse
	case r.thresholds.MaxBlockDelay > 0 && s.AvgBlockDelay > r.thresholds.MaxBlockDelay:
		s.Healthy = false
		s.Reason = ReasonBlockDelay
	case s.ValidationFailures > 0:
		s.Healthy = false
		s.Reason = ReasonValidationFailures
	}

	return s
}
