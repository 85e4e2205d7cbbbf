package sensors

import (
	"errors"
	"fmt"
	"sync"
)

// ADCMax is the full-scale reading of the 12-bit pressure front-end.
const ADCMax = 4095

const (
	// 0.5 V offset of the transducer out of a 4.5 V span.
	zeroOffset = 0.5 / 4.5
	fullScale  = 25 // bar
)

// ADC performs a one-shot conversion on the pressure channel.
type ADC interface {
	ReadRaw() (uint16, error)
}

// PressureReader returns the current pressure in bar.
type PressureReader interface {
	ReadPressure() (float32, error)
}

// ToBar converts a raw 12-bit reading into bar. Readings below the
// transducer offset are clamped to 0.
func ToBar(raw uint16) float32 {
	pct := float32(raw)/ADCMax - zeroOffset
	bar := pct * fullScale
	if bar < 0 {
		return 0
	}
	return bar
}

// PressureSensor owns the ADC for the duration of each read. A read issued
// while another is in flight fails with BusBusy instead of sharing the bus.
type PressureSensor struct {
	adc  ADC
	name string
	mu   sync.Mutex
}

// NewPressureSensor wraps an ADC channel.
func NewPressureSensor(adc ADC) *PressureSensor {
	return &PressureSensor{adc: adc, name: "pressure"}
}

// ReadPressure performs one conversion.
func (s *PressureSensor) ReadPressure() (float32, error) {
	if !s.mu.TryLock() {
		return 0, sensorErr(BusBusy, s.name, nil)
	}
	defer s.mu.Unlock()

	raw, err := s.adc.ReadRaw()
	if err != nil {
		var se *SensorError
		if errors.As(err, &se) {
			return 0, err
		}
		return 0, sensorErr(Disconnected, s.name, err)
	}
	if raw > ADCMax {
		return 0, sensorErr(OutOfRange, s.name, fmt.Errorf("raw %d", raw))
	}
	return ToBar(raw), nil
}
