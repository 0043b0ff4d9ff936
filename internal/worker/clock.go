package worker

import "sync/atomic"

// Sequencer stamps persisted records. Returned values must strictly
// increase.
type Sequencer interface {
	Next() int64
}

// Resumer is a Sequencer that can skip past seqs a store already holds.
// Restore resumes the worker's sequencer when it implements Resumer.
type Resumer interface {
	Sequencer
	Resume(after int64)
}

// Clock is the default Sequencer: a logical counter starting at 0.
// Records are ordered by seq, never by wall time, so a reopened store lists
// objects in registration order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Resume moves the clock forward so the next seq is after+1. A clock that
// is already past after is left alone.
func (c *Clock) Resume(after int64) {
	for {
		cur := c.seq.Load()
		if cur >= after || c.seq.CompareAndSwap(cur, after) {
			return
		}
	}
}
