package oracle

import (
	"sync"
	"time"

	"github.com/zodiacbot/zodiacbot/pkg/clock"
)

// DefaultInterval is the minimum spacing between upstream calls.
const DefaultInterval = 5 * time.Second

// Gate admits at most one upstream call per interval across the whole
// process. It keeps only the time of the last admitted call; rejected
// calls do not move it.
type Gate struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	last     time.Time
	used     bool
}

// NewGate creates a Gate. A non-positive interval uses DefaultInterval.
func NewGate(clk clock.Clock, interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{clock: clk, interval: interval}
}

// Admit reports whether a call may proceed now and, if so, records it.
func (g *Gate) Admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if g.used && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	g.used = true
	return true
}

// Interval returns the configured spacing.
func (g *Gate) Interval() time.Duration { return g.interval }
