// Package gpio provides access to the machine's digital lines with hardware
// abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Input reads a digital input.
type Input interface {
	// Read returns the logical level (true = asserted).
	Read() (bool, error)
}

// Output drives a digital output.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error
}

// Pin definitions (BCM numbering).
const (
	DefaultPinTrigger   = 25 // brew button, pulled down, active high
	DefaultPinZeroCross = 23 // mains zero-crossing detector
	DefaultPinPump      = 17 // pump triac (PSM channel 0)
	DefaultPinBoiler    = 18 // boiler relay
	DefaultPinValve     = 19 // three-way solenoid valve
	DefaultPinLED       = 2  // status LED, active low
	DefaultPinFlowEnter = 20 // inlet flow meter
	DefaultPinFlowExit  = 21 // outlet flow meter
	DefaultPinSteam     = 24 // steam button
)

// DefaultChip is the gpiochip the lines live on.
const DefaultChip = "gpiochip0"

// Lines maps machine functions to line offsets. A negative offset leaves
// the line unrequested.
type Lines struct {
	Chip      string
	Trigger   int
	ZeroCross int
	Pump      int
	Boiler    int
	Valve     int
	LED       int
	FlowEnter int
	FlowExit  int
	Steam     int

	// Debounce applied to the brew and steam buttons.
	Debounce time.Duration
}

// DefaultLines returns the standard wiring.
func DefaultLines() Lines {
	return Lines{
		Chip:      DefaultChip,
		Trigger:   DefaultPinTrigger,
		ZeroCross: DefaultPinZeroCross,
		Pump:      DefaultPinPump,
		Boiler:    DefaultPinBoiler,
		Valve:     DefaultPinValve,
		LED:       DefaultPinLED,
		FlowEnter: DefaultPinFlowEnter,
		FlowExit:  DefaultPinFlowExit,
		Steam:     DefaultPinSteam,
		Debounce:  20 * time.Millisecond,
	}
}

// Handlers are called from the line event goroutine on rising edges.
// They must not block.
type Handlers struct {
	ZeroCross func()
	FlowEnter func()
	FlowExit  func()
}

// Blink flashes code pulses on an active-low LED, then leaves it off.
func Blink(led Output, code int, period time.Duration) {
	for i := 0; i < code; i++ {
		led.Set(false)
		time.Sleep(period / 2)
		led.Set(true)
		time.Sleep(period / 2)
	}
}
