package catalog

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// Tracker holds the canonical keys seen during one ingestion run. It is not
// safe for concurrent use.
type Tracker interface {
	Seen(key Key) bool
	Record(key Key)
}

// ExactTracker is a hash-set Tracker. Memory grows with the number of
// distinct keys.
type ExactTracker struct {
	keys map[Key]struct{}
}

// NewExactTracker returns an empty ExactTracker.
func NewExactTracker() *ExactTracker {
	return &ExactTracker{keys: make(map[Key]struct{})}
}

func (t *ExactTracker) Seen(key Key) bool {
	_, ok := t.keys[key]
	return ok
}

func (t *ExactTracker) Record(key Key) {
	t.keys[key] = struct{}{}
}

// Len returns the number of recorded keys.
func (t *ExactTracker) Len() int {
	return len(t.keys)
}

// BloomTracker is a fixed-memory Tracker for feeds too large for an exact
// set. A false positive makes a unique row look like a duplicate, so it
// drops roughly fpRate of unique rows once capacity is reached.
type BloomTracker struct {
	filter *bloom.BloomFilter
	buf    []byte
}

// NewBloomTracker sizes a bloom filter for capacity keys at the given false
// positive rate.
func NewBloomTracker(capacity uint, fpRate float64) *BloomTracker {
	return &BloomTracker{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

func (t *BloomTracker) Seen(key Key) bool {
	t.buf = key.appendBinary(t.buf[:0])
	return t.filter.Test(t.buf)
}

func (t *BloomTracker) Record(key Key) {
	t.buf = key.appendBinary(t.buf[:0])
	t.filter.Add(t.buf)
}

// TrackerFactory creates the tracker for a new run.
type TrackerFactory func() Tracker

// ExactTrackers is the default TrackerFactory.
func ExactTrackers() Tracker {
	return NewExactTracker()
}

// BloomTrackers returns a TrackerFactory producing BloomTrackers.
func BloomTrackers(capacity uint, fpRate float64) TrackerFactory {
	return func() Tracker {
		return NewBloomTracker(capacity, fpRate)
	}
}
