// Package collision tracks a set of previously-seen frame sequence
// numbers and flags replays: a seen-set plus a sticky flag, with
// insertion order preserved for inspection.
package collision

import "github.com/alh477/dcfs/errs"

// Tracker detects replayed sequence numbers on a stream of inbound
// frames. It is not safe for concurrent use.
type Tracker struct {
	seen      map[uint32]struct{}
	seenOrder []uint32
	hasReplay bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		seen:      make(map[uint32]struct{}),
		seenOrder: make([]uint32, 0),
	}
}

// Track records seq and reports errs.ErrSequenceReplayed if it was
// already seen. The replay flag latches for HasReplay even if the caller
// ignores the returned error.
func (t *Tracker) Track(seq uint32) error {
	if _, exists := t.seen[seq]; exists {
		t.hasReplay = true
		return errs.ErrSequenceReplayed
	}

	t.seen[seq] = struct{}{}
	t.seenOrder = append(t.seenOrder, seq)

	return nil
}

// HasReplay reports whether any sequence number has been seen twice.
func (t *Tracker) HasReplay() bool {
	return t.hasReplay
}

// Seen returns the sequence numbers tracked so far, in the order Track
// first accepted them.
func (t *Tracker) Seen() []uint32 {
	return t.seenOrder
}

// Count returns the number of distinct sequence numbers tracked.
func (t *Tracker) Count() int {
	return len(t.seenOrder)
}

// Reset clears all tracked sequence numbers and the replay flag, so the
// Tracker can be reused for a new stream.
func (t *Tracker) Reset() {
	for k := range t.seen {
		delete(t.seen, k)
	}
	t.seenOrder = t.seenOrder[:0]
	t.hasReplay = false
}
