package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a StepClock reports.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a deterministic wall clock for tests. Every call to Now
// advances by one second from Epoch, so journal timestamps are stable
// across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu  sync.Mutex
	seq int64
}

// NewStepClock creates a clock whose first Now() is Epoch.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Now returns the next instant.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.seq) * time.Second)
	c.seq++
	return t
}

// Ticks returns how many times Now has been called.
func (c *StepClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
