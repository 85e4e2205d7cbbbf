package espresso

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/espresso/internal/pump"
	"github.com/sweeney/espresso/internal/sensors"
)

// ClickCounter measures the pump click rate.
type ClickCounter interface {
	CPS(ctx context.Context) int
}

// Sources are the sensors a snapshot is built from.
type Sources struct {
	Pressure    sensors.PressureReader
	Temperature sensors.TemperatureReader
	Flow        sensors.FlowReader
	Clicks      ClickCounter
}

// Builder produces one Snapshot per control tick. It is owned by the control
// tick and is not safe for concurrent use; its History may be read from
// anywhere.
type Builder struct {
	src     Sources
	history *History
	now     func() time.Time
}

// NewBuilder returns a Builder recording into history.
func NewBuilder(src Sources, history *History, now func() time.Time) *Builder {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{src: src, history: history, now: now}
}

// History returns the snapshot history.
func (b *Builder) History() *History {
	return b.history
}

// Reset starts a new shot: history and the weight integral are cleared, so
// the next snapshot has no predecessor.
func (b *Builder) Reset() {
	b.history.Reset()
}

// Next reads every sensor and derives flows, pressure change speed and
// estimated weight from the previous snapshot. On a sensor error the
// returned snapshot holds what was read so far with NaN elsewhere; it is
// not recorded in the history.
func (b *Builder) Next(ctx context.Context) (Snapshot, error) {
	pressure, perr := b.src.Pressure.ReadPressure()
	t := b.now()

	s := partial(t)
	if perr != nil {
		return s, fmt.Errorf("read pressure: %w", perr)
	}
	s.Pressure = pressure

	s.CPS = b.src.Clicks.CPS(ctx)

	temp, err := b.src.Temperature.ReadTemperature()
	if err != nil {
		return s, fmt.Errorf("read temperature: %w", err)
	}
	s.BoilerTemp = temp

	flow, err := b.src.Flow.ReadFlow()
	if err != nil {
		return s, fmt.Errorf("read flow: %w", err)
	}
	s.MeasuredFlow = flow
	s.EspressoFlow = flow.Espresso()
	s.EstimatedEspressoFlow = flow.Exit
	s.PumpFlow = pump.Flow(s.CPS, pressure)

	s.Elapsed = 0
	s.PressureChangeSpeed = 0
	s.EstimatedWeight = 0
	if prev, ok := b.history.Latest(); ok {
		if !s.Time.After(prev.Time) {
			// Clock did not advance: keep history ordered, report no
			// elapsed time.
			s.Time = prev.Time.Add(time.Nanosecond)
		} else {
			s.Elapsed = s.Time.Sub(prev.Time)
		}
		s.EstimatedWeight = prev.EstimatedWeight
		if dt := float32(s.Elapsed.Seconds()); dt > 0 {
			s.PressureChangeSpeed = (pressure - prev.Pressure) / dt
			if flow.Exit > 0 {
				s.EstimatedWeight += flow.Exit * dt
			}
		}
	}

	if err := b.history.Push(s); err != nil {
		return s, fmt.Errorf("record snapshot: %w", err)
	}
	return s, nil
}
