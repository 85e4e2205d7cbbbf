// Package sensors reads the machine's pressure transducer, temperature
// probes and flow meters.
package sensors

import (
	"errors"
	"fmt"
)

// Kind classifies a sensor failure.
type Kind int

const (
	Disconnected Kind = iota + 1
	OutOfRange
	BusBusy
)

func (k Kind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case OutOfRange:
		return "out of range"
	case BusBusy:
		return "bus busy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a *SensorError kind.
var (
	ErrDisconnected = errors.New("sensor disconnected")
	ErrOutOfRange   = errors.New("sensor out of range")
	ErrBusBusy      = errors.New("sensor bus busy")
)

// SensorError is returned by every sensor read.
type SensorError struct {
	Kind  Kind
	Probe string
	Err   error
}

func (e *SensorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Probe, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Probe, e.Kind)
}

func (e *SensorError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *SensorError) Is(target error) bool {
	switch target {
	case ErrDisconnected:
		return e.Kind == Disconnected
	case ErrOutOfRange:
		return e.Kind == OutOfRange
	case ErrBusBusy:
		return e.Kind == BusBusy
	}
	return false
}

func sensorErr(kind Kind, probe string, err error) error {
	return &SensorError{Kind: kind, Probe: probe, Err: err}
}
