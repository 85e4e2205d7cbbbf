// Package config loads the daemon's deployment configuration: wiring,
// buses, control cadence, transports and the registry's boot records.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/gpio"
	"github.com/sweeney/espresso/internal/mqtt"
	"github.com/sweeney/espresso/internal/registry"
	"github.com/sweeney/espresso/internal/sensors"
	"github.com/sweeney/espresso/internal/zerocross"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/espresso/config.yaml"

// Config represents the daemon configuration.
type Config struct {
	GPIO        GPIOConfig             `yaml:"gpio"`
	ADC         ADCConfig              `yaml:"adc"`
	Temperature TemperatureConfig      `yaml:"temperature"`
	Flow        FlowConfig             `yaml:"flow"`
	Control     ControlConfig          `yaml:"control"`
	MQTT        MQTTConfig             `yaml:"mqtt"`
	BLE         BLEConfig              `yaml:"ble"`
	HTTP        HTTPConfig             `yaml:"http"`
	Shot        registry.ShotConfig    `yaml:"shot"`
	Machine     registry.MachineConfig `yaml:"machine"`
}

// GPIOConfig maps machine functions to line offsets (BCM numbering).
// A negative offset leaves the line unused.
type GPIOConfig struct {
	Chip      string        `yaml:"chip"`
	Trigger   int           `yaml:"trigger"`
	Steam     int           `yaml:"steam"`
	ZeroCross int           `yaml:"zero_cross"`
	Pump      int           `yaml:"pump"`
	Boiler    int           `yaml:"boiler"`
	Valve     int           `yaml:"valve"`
	LED       int           `yaml:"led"`
	FlowEnter int           `yaml:"flow_enter"`
	FlowExit  int           `yaml:"flow_exit"`
	Debounce  time.Duration `yaml:"debounce"`
}

// ADCConfig locates the pressure transducer's ADC.
type ADCConfig struct {
	Bus     int    `yaml:"bus"`     // /dev/i2c-N
	Address uint16 `yaml:"address"` // 7-bit
	Channel uint8  `yaml:"channel"`
}

// TemperatureConfig lists the boiler probes; the reading is their mean.
type TemperatureConfig struct {
	Root   string   `yaml:"root"`
	Probes []string `yaml:"probes"` // w1 slave ids, e.g. 28-0000075a3b1c
}

// FlowConfig calibrates the flow meters.
type FlowConfig struct {
	PulsesPerGram float32 `yaml:"pulses_per_gram"`
}

// ControlConfig sets the control cadence.
type ControlConfig struct {
	Tick          time.Duration `yaml:"tick"`
	CPSWindow     time.Duration `yaml:"cps_window"`
	LineFrequency int           `yaml:"line_frequency"` // Hz
	HistorySize   int           `yaml:"history_size"`
	Heartbeat     time.Duration `yaml:"heartbeat"`     // 0 disables
	IdleSnapshots int           `yaml:"idle_snapshots"` // snapshot every n idle ticks, 0 disables
}

// MaxCPS is the click cap for the configured mains frequency.
func (c ControlConfig) MaxCPS() int {
	return c.LineFrequency
}

// MQTTConfig locates the broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
	// WSBroker is the websocket URL the status page uses for live updates.
	// "=broker" derives ws://host:9001 from Broker; empty disables.
	WSBroker string `yaml:"ws_broker"`
}

// BLEConfig locates the BLE-UART bridge.
type BLEConfig struct {
	Port     string `yaml:"port"` // empty disables
	BaudRate int    `yaml:"baud_rate"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	lines := gpio.DefaultLines()
	return &Config{
		GPIO: GPIOConfig{
			Chip:      lines.Chip,
			Trigger:   lines.Trigger,
			Steam:     lines.Steam,
			ZeroCross: lines.ZeroCross,
			Pump:      lines.Pump,
			Boiler:    lines.Boiler,
			Valve:     lines.Valve,
			LED:       lines.LED,
			FlowEnter: lines.FlowEnter,
			FlowExit:  lines.FlowExit,
			Debounce:  lines.Debounce,
		},
		ADC: ADCConfig{
			Bus:     1,
			Address: sensors.ADS1015Address,
			Channel: 0,
		},
		Temperature: TemperatureConfig{
			Root: sensors.DefaultW1Root,
		},
		Flow: FlowConfig{
			PulsesPerGram: sensors.DefaultPulsesPerGram,
		},
		Control: ControlConfig{
			Tick:          100 * time.Millisecond,
			CPSWindow:     zerocross.DefaultWindow,
			LineFrequency: zerocross.DefaultMaxCPS,
			HistorySize:   espresso.DefaultHistorySize,
			Heartbeat:     15 * time.Minute,
			IdleSnapshots: 10,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "espresso",
			Prefix:   mqtt.DefaultPrefix,
			WSBroker: "=broker",
		},
		BLE: BLEConfig{
			BaudRate: 9600,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Shot:    registry.DefaultShotConfig(),
		Machine: registry.DefaultMachineConfig(),
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the registry boot records and the control cadence.
func (c *Config) Validate() error {
	if err := c.Shot.Validate(); err != nil {
		return fmt.Errorf("shot: %w", err)
	}
	if err := c.Machine.Validate(); err != nil {
		return fmt.Errorf("machine: %w", err)
	}
	if c.Control.Tick < c.Control.CPSWindow {
		return fmt.Errorf("control: tick %v shorter than cps window %v", c.Control.Tick, c.Control.CPSWindow)
	}
	if c.ADC.Channel > 3 {
		return fmt.Errorf("adc: channel %d out of range", c.ADC.Channel)
	}
	return nil
}

// Lines returns the GPIO wiring.
func (c *Config) Lines() gpio.Lines {
	return gpio.Lines{
		Chip:      c.GPIO.Chip,
		Trigger:   c.GPIO.Trigger,
		ZeroCross: c.GPIO.ZeroCross,
		Pump:      c.GPIO.Pump,
		Boiler:    c.GPIO.Boiler,
		Valve:     c.GPIO.Valve,
		LED:       c.GPIO.LED,
		FlowEnter: c.GPIO.FlowEnter,
		FlowExit:  c.GPIO.FlowExit,
		Steam:     c.GPIO.Steam,
		Debounce:  c.GPIO.Debounce,
	}
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}
	if c.Temperature.Root == "" {
		c.Temperature.Root = def.Temperature.Root
	}
	if c.Flow.PulsesPerGram <= 0 {
		c.Flow.PulsesPerGram = def.Flow.PulsesPerGram
	}

	if c.Control.Tick <= 0 {
		c.Control.Tick = def.Control.Tick
	}
	if c.Control.CPSWindow <= 0 {
		c.Control.CPSWindow = def.Control.CPSWindow
	}
	if c.Control.CPSWindow > zerocross.MaxWindow {
		c.Control.CPSWindow = zerocross.MaxWindow
	}
	if c.Control.LineFrequency <= 0 {
		c.Control.LineFrequency = def.Control.LineFrequency
	}
	if c.Control.HistorySize == 0 {
		c.Control.HistorySize = def.Control.HistorySize
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = def.MQTT.Prefix
	}
	if c.BLE.BaudRate == 0 {
		c.BLE.BaudRate = def.BLE.BaudRate
	}
}
