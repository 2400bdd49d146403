package ledger

import (
	"sync"
	"time"
)

// Clock provides the time that instructions observe. Every instruction of a
// transaction observes the same time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns the wall clock, truncated to seconds.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().Truncate(time.Second)
}

// TestClock is a manually controlled Clock.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *TestClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
