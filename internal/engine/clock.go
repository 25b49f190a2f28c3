package engine

import "sync/atomic"

// Clock holds the scheduler's two logical counters: the tick number and the
// event sequence number.
//
// Both are strictly increasing and never derived from wall-clock time, so a
// run replays to the same numbers. Reads are safe from any goroutine; only
// the scheduler's owning goroutine advances them.
type Clock struct {
	tick atomic.Uint64
	seq  atomic.Int64
}

// NewClock creates a clock before the first tick, with no events issued.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known tick and seq.
func NewClockAt(tick uint64, seq int64) *Clock {
	c := &Clock{}
	c.tick.Store(tick)
	c.seq.Store(seq)
	return c
}

// AdvanceTick increments and returns the tick number. The first tick is 1.
func (c *Clock) AdvanceTick() uint64 {
	return c.tick.Add(1)
}

// Tick returns the number of the current (or last completed) tick.
func (c *Clock) Tick() uint64 {
	return c.tick.Load()
}

// NextSeq returns the next event sequence number. The first is 1.
func (c *Clock) NextSeq() int64 {
	return c.seq.Add(1)
}

// Seq returns the last issued sequence number without incrementing.
func (c *Clock) Seq() int64 {
	return c.seq.Load()
}
