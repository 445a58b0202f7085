package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() Thresholds {
	return Thresholds{
		ErrorThreshold:     3,
		MaxAvgResponseTime: 2 * time.Second,
		MaxBlockDelay:      17 * time.Second, // 12s block time + 5s slack
	}
}

func cleanObs() Observation {
	return Observation{
		ResponseTime: 100 * time.Millisecond,
		BlockDelay:   time.Second,
		HasDelay:     true,
	}
}

func TestRecorderEmptyWindowIsHealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	s := r.Snapshot()
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.Observations)
	assert.Equal(t, "alchemy", s.Provider)
}

func TestRecorderCleanObservationsStayHealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	for i := 0; i < 50; i++ {
		r.Record(cleanObs())
	}

	s := r.Snapshot()
	require.True(t, s.Healthy)
	assert.Equal(t, 20, s.Observations) // ring capped at window size
	assert.Equal(t, 0, s.Errors)
	assert.Equal(t, 100*time.Millisecond, s.AvgResponseTime)
	assert.Equal(t, time.Second, s.AvgBlockDelay)
}

func TestRecorderConsecutiveErrorsMarkUnhealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	r.Record(Observation{ResponseTime: 50 * time.Millisecond, Err: true})
	r.Record(Observation{ResponseTime: 50 * time.Millisecond, Err: true})
	require.True(t, r.Snapshot().Healthy, "below threshold")

	r.Record(Observation{ResponseTime: 50 * time.Millisecond, Err: true})
	s := r.Snapshot()
	require.False(t, s.Healthy)
	assert.Equal(t, ReasonConsecutiveErrors, s.Reason)
	assert.Equal(t, 3, s.ConsecutiveErrors)
}

func TestRecorderSuccessBreaksErrorRun(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	r.Record(Observation{Err: true})
	r.Record(Observation{Err: true})
	r.Record(cleanObs())
	r.Record(Observation{Err: true})

	s := r.Snapshot()
	assert.True(t, s.Healthy)
	assert.Equal(t, 1, s.ConsecutiveErrors)
	assert.Equal(t, 3, s.Errors)
}

func TestRecorderSlowResponsesMarkUnhealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	for i := 0; i < 5; i++ {
		r.Record(Observation{ResponseTime: 3 * time.Second, BlockDelay: time.Second, HasDelay: true})
	}

	s := r.Snapshot()
	require.False(t, s.Healthy)
	assert.Equal(t, ReasonSlowResponse, s.Reason)
	assert.Equal(t, 3*time.Second, s.AvgResponseTime)
}

func TestRecorderBlockDelayMarksUnhealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	for i := 0; i < 5; i++ {
		r.Record(Observation{ResponseTime: 100 * time.Millisecond, BlockDelay: 30 * time.Second, HasDelay: true})
	}

	s := r.Snapshot()
	require.False(t, s.Healthy)
	assert.Equal(t, ReasonBlockDelay, s.Reason)
}

func TestRecorderClampsNegativeDelay(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	// Clock skew between the local host and the chain timestamp.
	r.Record(Observation{ResponseTime: 100 * time.Millisecond, BlockDelay: -5 * time.Second, HasDelay: true})

	s := r.Snapshot()
	assert.True(t, s.Healthy)
	assert.Equal(t, time.Duration(0), s.AvgBlockDelay)
}

func TestRecorderRecentValidationFailureMarksUnhealthy(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	r.Record(Observation{ResponseTime: 100 * time.Millisecond, ValidationFailed: true})
	s := r.Snapshot()
	require.False(t, s.Healthy)
	assert.Equal(t, ReasonValidationFailures, s.Reason)

	// Clean fetches push the failure out of the recent lookback.
	for i := 0; i < 3; i++ {
		r.Record(cleanObs())
	}
	assert.True(t, r.Snapshot().Healthy)
}

func TestRecorderRingEvictsOldest(t *testing.T) {
	r := NewRecorder("alchemy", 3, testThresholds())

	for i := 0; i < 3; i++ {
		r.Record(Observation{Err: true})
	}
	require.False(t, r.Snapshot().Healthy)

	// The error run ages out entirely once the window refills with successes.
	for i := 0; i < 3; i++ {
		r.Record(cleanObs())
	}
	s := r.Snapshot()
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.Errors)
}

func TestRecorderReset(t *testing.T) {
	r := NewRecorder("alchemy", 20, testThresholds())

	for i := 0; i < 5; i++ {
		r.Record(Observation{Err: true})
	}
	require.False(t, r.Snapshot().Healthy)

	r.Reset()
	s := r.Snapshot()
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.Observations)
}
