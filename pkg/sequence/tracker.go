// Package sequence classifies fetched blocks against the last accepted
// block number, enforcing monotonic forward progress of the emitted stream.
package sequence

// Classification is the verdict for one fetched block number.
type Classification int

const (
	// First is the initial block after startup; always accepted.
	First Classification = iota
	// Next is the immediate successor of the last accepted block.
	Next
	// Duplicate is a block at or below the last accepted number; rejected.
	Duplicate
	// Gap skips ahead more than one block. Accepted, since a provider
	// switch can legitimately land on a further-ahead chain view, but
	// flagged so monitoring sees the hole.
	Gap
)

func (c Classification) String() string {
	switch c {
	case First:
		return "first"
	case Next:
		return "next"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// Accepted reports whether a block with this classification advances the
// stream and should be emitted.
func (c Classification) Accepted() bool {
	return c != Duplicate
}

// Tracker holds the last accepted block number.
// State persists only in memory: after a restart the stream resumes at
// First, and re-emitting an already-seen block is accepted behavior.
type Tracker struct {
	last    uint64
	started bool
}

// NewTracker returns a Tracker with no prior block.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Classify compares number against the last accepted block and advances the
// cursor on First, Next and Gap. Duplicate leaves the cursor untouched, so
// the last accepted number never decreases.
func (t *Tracker) Classify(number uint64) Classification {
	if !t.started {
		t.started = true
		t.last = number
		return First
	}

	switch {
	case number <= t.last:
		return Duplicate
	case number == t.last+1:
		t.last = number
		return Next
	default:
		t.last = number
		return Gap
	}
}

// Last returns the last accepted block number and whether any block has been
// accepted yet.
func (t *Tracker) Last() (uint64, bool) {
	return t.last, t.started
}
