package sensors

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPulsesPerGram is the calibration of a common hall-effect meter.
const DefaultPulsesPerGram = 1.925

// Flow is one reading of the inlet and outlet meters in g/s.
type Flow struct {
	Enter float32 `json:"enter"`
	Exit  float32 `json:"exit"`
}

// Espresso returns the flow retained in the group, enter minus exit.
func (f Flow) Espresso() float32 {
	return f.Enter - f.Exit
}

// FlowReader returns both meter readings.
type FlowReader interface {
	ReadFlow() (Flow, error)
}

// FlowMeter turns pulses from a hall-effect meter into g/s. Pulse is safe
// to call from an edge handler.
type FlowMeter struct {
	Name          string
	PulsesPerGram float32

	pulses atomic.Uint64

	mu    sync.Mutex
	seen  uint64
	lastT time.Time
	now   func() time.Time
}

// NewFlowMeter returns a meter with the given calibration.
func NewFlowMeter(name string, pulsesPerGram float32, now func() time.Time) *FlowMeter {
	if pulsesPerGram <= 0 {
		pulsesPerGram = DefaultPulsesPerGram
	}
	if now == nil {
		now = time.Now
	}
	return &FlowMeter{Name: name, PulsesPerGram: pulsesPerGram, now: now}
}

// Pulse records one meter pulse.
func (m *FlowMeter) Pulse() {
	m.pulses.Add(1)
}

// Pulses returns the total pulse count.
func (m *FlowMeter) Pulses() uint64 {
	return m.pulses.Load()
}

// Read returns the mean flow since the previous read. The first read
// starts the measurement and returns 0.
func (m *FlowMeter) Read() (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, t := m.pulses.Load(), m.now()
	defer func() { m.seen, m.lastT = n, t }()

	if m.lastT.IsZero() {
		return 0, nil
	}
	dt := t.Sub(m.lastT).Seconds()
	if dt <= 0 {
		return 0, nil
	}
	if n < m.seen {
		return 0, sensorErr(OutOfRange, m.Name, errors.New("pulse count went backwards"))
	}
	return float32(n-m.seen) / m.PulsesPerGram / float32(dt), nil
}

// FlowPair reads the inlet and outlet meters together.
type FlowPair struct {
	Enter *FlowMeter
	Exit  *FlowMeter
}

// ReadFlow reads both meters.
func (p FlowPair) ReadFlow() (Flow, error) {
	enter, err := p.Enter.Read()
	if err != nil {
		return Flow{}, err
	}
	exit, err := p.Exit.Read()
	if err != nil {
		return Flow{}, err
	}
	return Flow{Enter: enter, Exit: exit}, nil
}
