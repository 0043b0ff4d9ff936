package plan

import "sync/atomic"

// SlotCounter is a plan's monotonically increasing slot counter.
//
// Every state placeholder, argument and promoted slot takes the next index
// as its "#N" tag. Indices start at 1.
//
// Thread-safety: SlotCounter is safe for concurrent use (atomic operations).
type SlotCounter struct {
	n atomic.Int64
}

// NewSlotCounterAt creates a counter that has already handed out start slots.
// Used when a plan is reconstructed from its serialized form.
func NewSlotCounterAt(start int) *SlotCounter {
	c := &SlotCounter{}
	c.n.Store(int64(start))
	return c
}

// Next increments the counter and returns the new slot index.
func (c *SlotCounter) Next() int {
	return int(c.n.Add(1))
}

// Current returns the number of slots handed out so far.
func (c *SlotCounter) Current() int {
	return int(c.n.Load())
}
