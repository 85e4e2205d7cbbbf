package pump

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Driver commits a raw duty to a modulator channel. It is satisfied by
// psm.Modulator.
type Driver interface {
	SetPower(channel int, value uint8) error
}

// State is the part of a sensor snapshot the controllers need.
type State struct {
	Pressure            float32 // bar
	PumpFlow            float32 // g/s
	PressureChangeSpeed float32 // bar/s
}

// ActuationError reports a raw value that could not be written.
type ActuationError struct {
	Raw uint8
	Err error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("set pump raw %d: %v", e.Raw, e.Err)
}

func (e *ActuationError) Unwrap() error { return e.Err }

// Actuator converts pressure and flow targets into modulator duty.
// It is owned by the control tick and is not safe for concurrent use.
type Actuator struct {
	drv     Driver
	channel int

	last      uint8
	delivered bool
}

// NewActuator returns an Actuator writing to the given modulator channel.
func NewActuator(drv Driver, channel int) *Actuator {
	return &Actuator{drv: drv, channel: channel, delivered: true}
}

// PressurePct returns the duty in [0, 1] that drives the pump towards
// targetPressure. flowRestriction <= 0 means no flow cap.
func PressurePct(targetPressure, flowRestriction float32, s State) float32 {
	if targetPressure == 0 {
		return 0
	}

	diff := targetPressure - s.Pressure

	maxPct := float32(1)
	if flowRestriction > 0 {
		maxPct = ClicksForFlow(flowRestriction, s.Pressure) / MaxClicksPerSecond
	}
	maintain := ClicksForFlow(s.PumpFlow, s.Pressure) / MaxClicksPerSecond

	switch {
	case diff > 2:
		return math32.Min(maxPct, 0.25+0.2*diff)
	case diff > 0:
		return math32.Min(maxPct, maintain*0.95+0.1+0.2*diff)
	case s.PressureChangeSpeed < 0:
		return math32.Min(maxPct, maintain*0.2)
	default:
		return 0
	}
}

// FlowPct returns the duty for targetFlow and whether the pressure
// restriction took over. Once the pressure passes half the restriction the
// restriction becomes the pressure target and the flow becomes its cap.
func FlowPct(targetFlow, pressureRestriction float32, s State) (float32, bool) {
	if pressureRestriction > 0 && s.Pressure > pressureRestriction/2 {
		return PressurePct(pressureRestriction, targetFlow, s), true
	}
	return ClicksForFlow(targetFlow, s.Pressure) / MaxClicksPerSecond, false
}

// RawValue converts a duty fraction into the modulator range.
func RawValue(pct float32) uint8 {
	if math32.IsNaN(pct) || pct <= 0 {
		return 0
	}
	raw := math32.Round(pct * float32(Range))
	if raw >= float32(Range) {
		return Range
	}
	return uint8(raw)
}

// SetPressure drives the pump towards targetPressure and returns the raw
// value commanded.
func (a *Actuator) SetPressure(targetPressure, flowRestriction float32, s State) (uint8, error) {
	return a.set(RawValue(PressurePct(targetPressure, flowRestriction, s)))
}

// SetFlow drives the pump towards targetFlow, handing over to pressure
// control when pressureRestriction is reached.
func (a *Actuator) SetFlow(targetFlow, pressureRestriction float32, s State) (uint8, error) {
	pct, _ := FlowPct(targetFlow, pressureRestriction, s)
	return a.set(RawValue(pct))
}

// Off stops the pump.
func (a *Actuator) Off() error {
	_, err := a.set(0)
	return err
}

// FullOn fires every click.
func (a *Actuator) FullOn() error {
	_, err := a.set(Range)
	return err
}

// Retry re-sends the last value if its write failed. It reports whether a
// write was attempted.
func (a *Actuator) Retry() (bool, error) {
	if a.delivered {
		return false, nil
	}
	_, err := a.set(a.last)
	return true, err
}

// Last returns the last commanded raw value and whether it reached the
// driver.
func (a *Actuator) Last() (uint8, bool) {
	return a.last, a.delivered
}

func (a *Actuator) set(raw uint8) (uint8, error) {
	a.last = raw
	if err := a.drv.SetPower(a.channel, raw); err != nil {
		a.delivered = false
		return raw, &ActuationError{Raw: raw, Err: err}
	}
	a.delivered = true
	return raw, nil
}
