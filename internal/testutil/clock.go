package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic logical clock for tests.
//
// It hands out a strictly increasing sequence and derives reproducible
// timestamps from it, so the same scenario produces byte-identical
// traces on every run. Reset allows reuse across subtests.
type Clock struct {
	mu   sync.Mutex
	seq  uint64
	base time.Time
}

// NewClock creates a clock starting at sequence 0 with a fixed epoch.
//
// The first call to Next() returns 1.
func NewClock() *Clock {
	return &Clock{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Next increments and returns the next sequence number.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the sequence and returns the epoch shifted by one second
// per tick. Suitable as a store timestamp override.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.base.Add(time.Duration(c.seq) * time.Second)
}

// Reset rewinds the clock to 0. After Reset, Next() returns 1 again.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
