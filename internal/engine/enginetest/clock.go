// Package enginetest provides helpers for testing code driven by engine.Engine.
package enginetest

import (
	"sync"
	"time"
)

// Clock is a manual engine.Clock. Time only moves when the engine asks to
// sleep (scaled by the factor) or when a test calls Advance, so runs finish
// instantly and deterministically.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	factor float64
	sleeps []time.Duration
}

// NewClock returns a clock whose sleeps advance time by exactly the requested amount.
func NewClock() *Clock {
	return &Clock{now: time.Unix(1_700_000_000, 0).UTC(), factor: 1}
}

// SetFactor scales every sleep: 0 models a clock that never moves,
// 10 models a host that oversleeps tenfold.
func (c *Clock) SetFactor(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factor = f
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After records the sleep, advances time and returns an already-fired channel.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	scaled := d
	if c.factor != 1 {
		scaled = time.Duration(float64(d) * c.factor)
	}
	c.now = c.now.Add(scaled)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves time forward, e.g. to simulate a slow Update.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every sleep requested so far.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
