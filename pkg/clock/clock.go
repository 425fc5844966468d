// Package clock provides the time sources used by ZodiacBot services: the
// wall clock for production and an offset clock that tests and the payment
// simulator can move forward.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Offset is a wall clock shifted by an adjustable offset. The zero value is
// ready to use and reports real time.
type Offset struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewOffset creates an offset clock with no offset.
func NewOffset() *Offset {
	return &Offset{}
}

// Now returns the current shifted time in UTC.
func (c *Offset) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().UTC().Add(c.offset)
}

// Advance moves the clock forward by d. Negative values move it back.
func (c *Offset) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset returns the clock to real time.
func (c *Offset) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Shift returns the current offset from real time.
func (c *Offset) Shift() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Fixed is a manually driven clock. Tests use it where exact arithmetic on
// timestamps matters.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a clock frozen at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the frozen time.
func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the frozen time forward by d.
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set replaces the frozen time.
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
