package zerocross

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mains drives a Counter from a fake clock: every wait advances the clock
// and emits the edges a mains supply at Rate would have produced.
type mains struct {
	t   time.Time
	sim *Simulator
}

func newMains(c *Counter, rate int) *mains {
	m := &mains{
		t:   time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC),
		sim: &Simulator{Rate: rate, Handlers: []func(){c.Edge}},
	}
	c.SetClock(m.now, m.sleep)
	return m
}

func (m *mains) now() time.Time { return m.t }

func (m *mains) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.sim.Advance(d)
	m.t = m.t.Add(d)
	return nil
}

func TestNewCounterDefaults(t *testing.T) {
	c := NewCounter(0, 0)
	assert.Equal(t, DefaultWindow, c.Window())
	assert.Equal(t, DefaultMaxCPS, c.maxCPS)

	c = NewCounter(time.Second, 60)
	assert.Equal(t, MaxWindow, c.Window(), "window clamped")
}

func TestCPSFiftyHertz(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 50)
	newMains(c, 50)

	assert.Equal(t, 50, c.CPS(context.Background()))
	assert.Equal(t, 50, c.Last())
}

func TestCPSSixtyHertz(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 60)
	newMains(c, 60)

	assert.Equal(t, 60, c.CPS(context.Background()))
}

func TestCPSCapped(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 50)
	newMains(c, 100)

	assert.Equal(t, 50, c.CPS(context.Background()))
}

func TestCPSNoEdges(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 50)
	newMains(c, 0)

	assert.Equal(t, 0, c.CPS(context.Background()))
}

func TestCPSIgnoresEdgesBeforeWindow(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 50)
	newMains(c, 30)

	for i := 0; i < 1000; i++ {
		c.Edge()
	}
	assert.Equal(t, 30, c.CPS(context.Background()))
	assert.Equal(t, uint64(1003), c.Edges())
}

func TestCPSCancelled(t *testing.T) {
	c := NewCounter(100*time.Millisecond, 50)
	newMains(c, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, c.CPS(ctx))
}

func TestRateRounds(t *testing.T) {
	assert.Equal(t, 47, rate(14, 300*time.Millisecond, 50))
	assert.Equal(t, 0, rate(5, 0, 50))
	assert.Equal(t, 0, rate(0, time.Second, 50))
}

func TestEdgeConcurrent(t *testing.T) {
	c := NewCounter(DefaultWindow, DefaultMaxCPS)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Edge()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(2000), c.Edges())
}

func TestCPSRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("uses wall clock")
	}
	c := NewCounter(50*time.Millisecond, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := &Simulator{Rate: 200, Handlers: []func(){c.Edge}}
	go sim.Run(ctx)

	// Wall-clock tickers are coarse; only check the edge path is live.
	require.Eventually(t, func() bool { return c.CPS(ctx) > 0 }, 2*time.Second, 10*time.Millisecond)
}
