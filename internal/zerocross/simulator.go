package zerocross

import (
	"context"
	"math"
	"time"
)

// Simulator produces zero-crossing edges at a fixed rate, standing in for
// the mains detector when no hardware is attached.
type Simulator struct {
	// Rate is the number of edges per second.
	Rate int
	// Handlers are called on every edge, in order.
	Handlers []func()
}

// Run emits edges until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	if s.Rate <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(s.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(1)
		}
	}
}

// Advance emits the edges that fall into d, for use with a fake clock.
func (s *Simulator) Advance(d time.Duration) {
	n := int(math.Round(float64(s.Rate) * d.Seconds()))
	s.fire(n)
}

func (s *Simulator) fire(n int) {
	for i := 0; i < n; i++ {
		for _, h := range s.Handlers {
			h()
		}
	}
}
