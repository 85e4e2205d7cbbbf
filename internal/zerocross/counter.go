// Package zerocross counts AC zero-crossing edges and reports the click rate
// the pump would fire at if driven full-on.
package zerocross

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

const (
	// DefaultWindow is the CPS measurement window.
	DefaultWindow = 100 * time.Millisecond
	// MaxWindow bounds the window relative to the brew cadence.
	MaxWindow = 200 * time.Millisecond
	// DefaultMaxCPS is the click cap for 50 Hz mains.
	DefaultMaxCPS = 50
)

// Counter accumulates zero-crossing edges. Edge is safe to call from an
// interrupt or event-handler goroutine; CPS is called by the control tick.
type Counter struct {
	edges atomic.Uint64
	last  atomic.Int64

	window time.Duration
	maxCPS int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCounter returns a Counter measuring over window (clamped to
// (0, MaxWindow]) and capping the rate at maxCPS.
func NewCounter(window time.Duration, maxCPS int) *Counter {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	if maxCPS <= 0 {
		maxCPS = DefaultMaxCPS
	}
	return &Counter{
		window: window,
		maxCPS: maxCPS,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetClock replaces the time source and the window wait. Used by tests and
// the simulator.
func (c *Counter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	c.now = now
	c.sleep = sleep
}

// Edge records one rising edge. It never blocks.
func (c *Counter) Edge() {
	c.edges.Add(1)
}

// Edges returns the total number of edges seen.
func (c *Counter) Edges() uint64 {
	return c.edges.Load()
}

// Window returns the measurement window.
func (c *Counter) Window() time.Duration {
	return c.window
}

// CPS samples the edge count, waits one window and samples again. The rate
// is computed in floating point and rounded. A cancelled wait returns 0.
func (c *Counter) CPS(ctx context.Context) int {
	c0, t0 := c.edges.Load(), c.now()
	if err := c.sleep(ctx, c.window); err != nil {
		return 0
	}
	c1, t1 := c.edges.Load(), c.now()

	cps := rate(c1-c0, t1.Sub(t0), c.maxCPS)
	c.last.Store(int64(cps))
	return cps
}

// Last returns the most recent CPS measurement.
func (c *Counter) Last() int {
	return int(c.last.Load())
}

func rate(edges uint64, elapsed time.Duration, maxCPS int) int {
	if edges == 0 || elapsed <= 0 {
		return 0
	}
	cps := int(math.Round(float64(edges) / elapsed.Seconds()))
	if cps > maxCPS {
		return maxCPS
	}
	return cps
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
