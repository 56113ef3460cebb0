package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every reading.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	ms   int64
	step int64
}

// NewDeterministicClock creates a clock whose first reading is startMS
// milliseconds since the epoch and which advances one second per reading.
func NewDeterministicClock(startMS int64) *DeterministicClock {
	return &DeterministicClock{ms: startMS, step: 1000}
}

// Now returns the current reading and advances the clock. Its signature
// matches time.Now so it can be passed where a clock function is expected.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.UnixMilli(c.ms)
	c.ms += c.step
	return t
}

// Current returns the next reading in milliseconds without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Set moves the clock to ms.
func (c *DeterministicClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}
