// Package storage holds helpers shared by every turn store backend.
package storage

import (
	"sync"
	"time"
)

// Clock hands out timestamps that never go backwards, even when the wall
// clock does.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock wraps now; nil means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Stamp returns the timestamp for the next appended turn.
func (c *Clock) Stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().Round(0)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Cutoff returns the oldest timestamp still inside window. Negative windows
// count as zero.
func (c *Clock) Cutoff(window time.Duration) time.Time {
	if window < 0 {
		window = 0
	}
	return c.now().Round(0).Add(-window)
}
