// Package testutils provides shared test helpers for the consensus
// engine: a controllable clock and statement/evaluation fixtures.
package testutils

import (
	"sync"
	"time"
)

// FakeClock is a manually-advanced clock for deterministic tests of
// time-windowed behavior, such as the idempotency guard's recognition
// window. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at the given instant.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the clock's current instant. Pass the method value as
// the engine's clock function.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
