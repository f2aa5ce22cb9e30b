package engine

import "sync/atomic"

// Clock issues monotonically increasing mutation ids.
//
// Every queued mutation is stamped with a strictly increasing id from this
// clock. The id defines the FIFO tie-break order among independently ready
// mutations, so replay order is deterministic without wall-clock races.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Enqueues may race from multiple goroutines even though draining is
// single-writer.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific id.
// Used on startup to resume above the highest persisted mutation id.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next mutation id and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current id without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
