package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFirstNextDuplicate(t *testing.T) {
	tr := NewTracker()

	assert.Equal(t, First, tr.Classify(5))
	assert.Equal(t, Next, tr.Classify(6))
	assert.Equal(t, Duplicate, tr.Classify(6))

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(6), last)
}

func TestTrackerGapAdvancesCursor(t *testing.T) {
	tr := NewTracker()

	assert.Equal(t, First, tr.Classify(5))
	assert.Equal(t, Gap, tr.Classify(9))

	last, _ := tr.Last()
	assert.Equal(t, uint64(9), last)

	// Stream continues from the far side of the gap.
	assert.Equal(t, Next, tr.Classify(10))
}

func TestTrackerRejectsRegression(t *testing.T) {
	tr := NewTracker()
	tr.Classify(100)

	assert.Equal(t, Duplicate, tr.Classify(99))
	assert.Equal(t, Duplicate, tr.Classify(100))

	last, _ := tr.Last()
	assert.Equal(t, uint64(100), last, "cursor never decreases")
}

func TestTrackerNoPriorBlock(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Last()
	assert.False(t, ok)
}

func TestClassificationAccepted(t *testing.T) {
	assert.True(t, First.Accepted())
	assert.True(t, Next.Accepted())
	assert.True(t, Gap.Accepted())
	assert.False(t, Duplicate.Accepted())
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "first", First.String())
	assert.Equal(t, "next", Next.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "gap", Gap.String())
}
