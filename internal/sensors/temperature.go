package sensors

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultW1Root is where the kernel w1 bus exposes its slaves.
const DefaultW1Root = "/sys/bus/w1/devices"

// DS18B20 limits. 85 °C exactly is the power-on reset value, returned when
// a conversion never ran.
const (
	minCelsius   = -55
	maxCelsius   = 125
	resetCelsius = 85000
)

// Probe reads one temperature probe.
type Probe interface {
	ReadCelsius() (float32, error)
}

// TemperatureReader returns the boiler temperature.
type TemperatureReader interface {
	ReadTemperature() (float32, error)
}

// W1Probe reads a DS18B20 through the kernel w1-therm driver.
type W1Probe struct {
	Root string
	ID   string
}

// NewW1Probe returns a probe for a w1 slave id such as "28-0000075a3b1c".
func NewW1Probe(id string) *W1Probe {
	return &W1Probe{Root: DefaultW1Root, ID: id}
}

// ReadCelsius reads the temperature attribute (milli-degrees).
func (p *W1Probe) ReadCelsius() (float32, error) {
	data, err := os.ReadFile(filepath.Join(p.Root, p.ID, "temperature"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, sensorErr(Disconnected, p.ID, err)
		}
		return 0, sensorErr(BusBusy, p.ID, err)
	}

	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, sensorErr(Disconnected, p.ID, errors.New("empty reading"))
	}
	milli, err := strconv.Atoi(s)
	if err != nil {
		return 0, sensorErr(OutOfRange, p.ID, fmt.Errorf("parse %q: %w", s, err))
	}
	if milli == resetCelsius {
		return 0, sensorErr(OutOfRange, p.ID, errors.New("power-on reset value"))
	}
	c := float32(milli) / 1000
	if c < minCelsius || c > maxCelsius {
		return 0, sensorErr(OutOfRange, p.ID, fmt.Errorf("%.3f °C", c))
	}
	return c, nil
}

// Thermometer averages several probes. Any failing probe fails the read.
type Thermometer struct {
	probes []Probe
}

// NewThermometer returns a Thermometer over the given probes.
func NewThermometer(probes ...Probe) *Thermometer {
	return &Thermometer{probes: probes}
}

// ReadTemperature returns the mean of all probes.
func (t *Thermometer) ReadTemperature() (float32, error) {
	if len(t.probes) == 0 {
		return 0, sensorErr(Disconnected, "temperature", errors.New("no probes"))
	}
	var sum float32
	for i, p := range t.probes {
		c, err := p.ReadCelsius()
		if err != nil {
			var se *SensorError
			if errors.As(err, &se) {
				return 0, err
			}
			return 0, sensorErr(Disconnected, fmt.Sprintf("temperature[%d]", i), err)
		}
		sum += c
	}
	return sum / float32(len(t.probes)), nil
}
