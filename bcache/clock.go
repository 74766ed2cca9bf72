package bcache

import "sync/atomic"

// Clock supplies idle ticks. Ticks only order eviction candidates; they are
// not wall time.
type Clock interface {
	Now() uint64
}

// LogicalClock is a Clock that advances by one on every reading, so every
// idle stamp is distinct and later releases always rank younger.
type LogicalClock struct {
	t atomic.Uint64
}

// Now advances the clock and returns the new tick.
func (c *LogicalClock) Now() uint64 {
	return c.t.Add(1)
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint64

// Now calls f.
func (f ClockFunc) Now() uint64 {
	return f()
}
