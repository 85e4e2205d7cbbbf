package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/espresso/internal/gpio"
	"github.com/sweeney/espresso/internal/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, gpio.DefaultChip, cfg.GPIO.Chip)
	assert.Equal(t, gpio.DefaultPinTrigger, cfg.GPIO.Trigger)
	assert.Equal(t, gpio.DefaultPinZeroCross, cfg.GPIO.ZeroCross)
	assert.Equal(t, uint16(0x48), cfg.ADC.Address)
	assert.Equal(t, 100*time.Millisecond, cfg.Control.Tick)
	assert.Equal(t, 100*time.Millisecond, cfg.Control.CPSWindow)
	assert.Equal(t, 50, cfg.Control.MaxCPS())
	assert.Equal(t, 8, cfg.Control.HistorySize)
	assert.Equal(t, "espresso/machine", cfg.MQTT.Prefix)
	assert.Empty(t, cfg.BLE.Port)
	assert.Equal(t, registry.DefaultShotConfig(), cfg.Shot)
	assert.Equal(t, registry.DefaultMachineConfig(), cfg.Machine)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
gpio:
  trigger: 5
  steam: -1
  debounce: 30ms

adc:
  bus: 0
  address: 0x49
  channel: 2

temperature:
  probes: [28-0000075a3b1c, 28-0000075a3b1d]

control:
  tick: 150ms
  cps_window: 120ms
  line_frequency: 60
  heartbeat: 0s

mqtt:
  broker: tcp://10.0.0.2:1883
  prefix: kitchen/espresso

ble:
  port: /dev/ttyS0

shot:
  pressure: 8.5
  override_final_weight: 36
  override_shot_time: 30
  initialisation: AnalogButton

machine:
  mode: ShotProfiling
  brew_temp_setpoint: 93
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.GPIO.Trigger)
	assert.Equal(t, -1, cfg.GPIO.Steam)
	assert.Equal(t, 30*time.Millisecond, cfg.GPIO.Debounce)
	assert.Equal(t, gpio.DefaultPinValve, cfg.GPIO.Valve, "unset lines keep defaults")

	assert.Equal(t, 0, cfg.ADC.Bus)
	assert.Equal(t, uint16(0x49), cfg.ADC.Address)
	assert.Equal(t, uint8(2), cfg.ADC.Channel)

	assert.Equal(t, []string{"28-0000075a3b1c", "28-0000075a3b1d"}, cfg.Temperature.Probes)

	assert.Equal(t, 150*time.Millisecond, cfg.Control.Tick)
	assert.Equal(t, 120*time.Millisecond, cfg.Control.CPSWindow)
	assert.Equal(t, 60, cfg.Control.MaxCPS())
	assert.Equal(t, time.Duration(0), cfg.Control.Heartbeat)

	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.MQTT.Broker)
	assert.Equal(t, "kitchen/espresso", cfg.MQTT.Prefix)
	assert.Equal(t, "espresso", cfg.MQTT.ClientID)
	assert.Equal(t, "/dev/ttyS0", cfg.BLE.Port)
	assert.Equal(t, 9600, cfg.BLE.BaudRate)

	assert.Equal(t, float32(8.5), cfg.Shot.Pressure)
	assert.Equal(t, float32(16), cfg.Shot.GrainsWeightIn, "unset shot fields keep defaults")
	w, ok := cfg.Shot.FinalWeight()
	assert.True(t, ok)
	assert.Equal(t, float32(36), w)
	d, ok := cfg.Shot.ShotTime()
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	assert.Equal(t, registry.ShotProfiling, cfg.Machine.Mode)
	assert.Equal(t, float32(93), cfg.Machine.BrewTempSetpoint)
}

func TestLoad_EnsureDefaults(t *testing.T) {
	path := writeConfig(t, `
gpio:
  chip: ""
control:
  tick: 0s
  cps_window: 0s
  line_frequency: 0
mqtt:
  prefix: ""
  client_id: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, gpio.DefaultChip, cfg.GPIO.Chip)
	assert.Equal(t, 100*time.Millisecond, cfg.Control.Tick)
	assert.Equal(t, 100*time.Millisecond, cfg.Control.CPSWindow)
	assert.Equal(t, 50, cfg.Control.LineFrequency)
	assert.Equal(t, "espresso/machine", cfg.MQTT.Prefix)
	assert.Equal(t, "espresso", cfg.MQTT.ClientID)
}

func TestLoad_WindowClamped(t *testing.T) {
	path := writeConfig(t, `
control:
  tick: 500ms
  cps_window: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Control.CPSWindow)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "gpio: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownMode(t *testing.T) {
	path := writeConfig(t, `
machine:
  mode: Espresso
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidShot(t *testing.T) {
	path := writeConfig(t, `
shot:
  pressure: 20
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shot")
}

func TestValidate_TickShorterThanWindow(t *testing.T) {
	cfg := Default()
	cfg.Control.Tick = 50 * time.Millisecond

	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.Temperature.Probes = []string{"28-1"}
	cfg.Machine.Mode = registry.Steam
	w := float32(40)
	cfg.Shot.OverrideFinalWeight = &w

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveSkipsRuntimeFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Machine.LED = true
	cfg.Machine.Snapshot.BoilerOn = true
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Contains(t, doc, "machine")
	assert.Contains(t, doc["machine"], "mode")
	assert.NotContains(t, doc["machine"], "led")
	assert.NotContains(t, doc["machine"], "snapshot")
	assert.Contains(t, doc["gpio"], "led", "the led line offset is deployment config")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Machine.LED)
	assert.False(t, loaded.Machine.Snapshot.BoilerOn)
}

func TestLines(t *testing.T) {
	cfg := Default()
	assert.Equal(t, gpio.DefaultLines(), cfg.Lines())
}
