// Package clock provides an injectable time source.
package clock

import (
	"sync"
	"time"
)

// NowFunc returns the current instant.
type NowFunc func() time.Time

// OrSystem returns fn, or time.Now when fn is nil.
func OrSystem(fn NowFunc) NowFunc {
	if fn == nil {
		return time.Now
	}
	return fn
}

// Fake is a controllable clock for tests.
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake returns a clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{current: start}
}

// Now returns the instant tracked by the clock.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set moves the clock to t.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Fake) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
