// Package sim is a plant model of the espresso machine. It stands in for
// the sensors and lines when the daemon runs without hardware.
//
// Water enters the group from the pump one click at a time, leaves through
// the puck while the valve is open, and vents back to the tank while it is
// closed. The boiler heats under a mechanical thermostat.
package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/sweeney/espresso/internal/pump"
	"github.com/sweeney/espresso/internal/sensors"
)

// Plant constants.
const (
	compliance      float32 = 0.4   // g/bar, water the group absorbs per bar
	puckConductance float32 = 0.25  // g/s/bar through the coffee bed
	ventRate        float32 = 4     // 1/s, pressure decay through the open vent
	ambient         float32 = 20    // °C
	thermostat      float32 = 95    // °C, heater cut-out
	heatRate        float32 = 0.6   // °C/s with the element on
	coolRate        float32 = 0.002 // 1/s towards ambient
)

// Line is an output that keeps only its current level.
type Line struct {
	level atomic.Bool
}

// Set drives the line.
func (l *Line) Set(high bool) error {
	l.level.Store(high)
	return nil
}

// Level returns the current level.
func (l *Line) Level() bool {
	return l.level.Load()
}

// Button presses itself for Press at the start of every Period.
type Button struct {
	Period time.Duration
	Press  time.Duration
	Start  time.Time
	now    func() time.Time
}

// NewButton returns a Button whose cycle starts at now().
func NewButton(period, press time.Duration, now func() time.Time) *Button {
	return &Button{Period: period, Press: press, Start: now(), now: now}
}

// Read reports whether the button is pressed.
func (b *Button) Read() (bool, error) {
	if b.Period <= 0 {
		return false, nil
	}
	in := b.now().Sub(b.Start) % b.Period
	return in >= 0 && in < b.Press, nil
}

// ClickSource counts the pump clicks fired so far.
type ClickSource interface {
	Fired(ch int) uint64
}

// Machine is the simulated group, boiler and flow meters.
type Machine struct {
	Valve  *Line
	Boiler *Line
	LED    *Line
	Pump   *Line

	clicks  ClickSource
	channel int
	now     func() time.Time

	mu        sync.Mutex
	pressure  float32
	temp      float32
	lastT     time.Time
	lastFired uint64

	// metered grams since the last ReadFlow
	enterG, exitG float32
	flowT         time.Time
}

// New returns a cold, depressurised machine whose pump fires on channel of
// clicks.
func New(clicks ClickSource, channel int, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		Valve:   &Line{},
		Boiler:  &Line{},
		LED:     &Line{},
		Pump:    &Line{},
		clicks:  clicks,
		channel: channel,
		now:     now,
		temp:    ambient,
	}
}

// step advances the plant to now. Callers hold mu.
func (m *Machine) step() {
	t := m.now()
	fired := m.clicks.Fired(m.channel)
	if m.lastT.IsZero() {
		m.lastT, m.lastFired = t, fired
		return
	}
	dt := float32(t.Sub(m.lastT).Seconds())
	if dt <= 0 {
		return
	}
	clicks := fired - m.lastFired
	m.lastT, m.lastFired = t, fired

	in := float32(clicks) * pump.FlowPerClick(m.pressure)
	var out, vent float32
	if m.Valve.Level() {
		out = puckConductance * m.pressure * dt
	} else {
		vent = math32.Min(ventRate*dt, 1) * m.pressure * compliance
	}
	m.pressure = math32.Max(0, m.pressure+(in-out-vent)/compliance)
	m.enterG += in
	m.exitG += out

	if m.Boiler.Level() && m.temp < thermostat {
		m.temp = math32.Min(thermostat, m.temp+heatRate*dt)
	}
	m.temp -= (m.temp - ambient) * math32.Min(coolRate*dt, 1)
}

// ReadPressure returns the group pressure in bar.
func (m *Machine) ReadPressure() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step()
	return m.pressure, nil
}

// ReadTemperature returns the boiler temperature in °C.
func (m *Machine) ReadTemperature() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step()
	return m.temp, nil
}

// ReadFlow returns the mean inlet and puck flow in g/s since the previous
// ReadFlow, like a pair of pulse meters. The first read starts metering and
// returns zero. Vented water is not metered.
func (m *Machine) ReadFlow() (sensors.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step()

	t := m.now()
	if m.flowT.IsZero() {
		m.flowT, m.enterG, m.exitG = t, 0, 0
		return sensors.Flow{}, nil
	}
	dt := float32(t.Sub(m.flowT).Seconds())
	if dt <= 0 {
		return sensors.Flow{}, nil
	}
	f := sensors.Flow{Enter: m.enterG / dt, Exit: m.exitG / dt}
	m.flowT, m.enterG, m.exitG = t, 0, 0
	return f, nil
}

// SetTemperature preheats the boiler.
func (m *Machine) SetTemperature(c float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temp = c
}
