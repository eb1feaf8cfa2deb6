package testfixtures

import (
	"context"
	"sync"
	"time"
)

// Clock is a manually driven time source. Services receive NowFunc and tests
// move time with Set and Advance.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	slept   []time.Duration
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection; a nil clock falls back to time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// Sleep advances the clock by d instead of blocking. It matches the wait
// hook shape used for confirmation grace periods.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
}

// Slept returns every duration passed to Sleep, in call order.
func (c *Clock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// Current is Now without implying progression.
func (c *Clock) Current() time.Time {
	return c.Now()
}
