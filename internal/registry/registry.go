// Package registry holds the shot and machine configuration shared between
// the control tick and the wireless surface.
//
// Each record has its own mutex. Readers receive copies; writers replace a
// whole record or nothing.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
)

// Record names, matching the wireless characteristics.
const (
	RecordShot    = "shot_config"
	RecordMachine = "machine_configuration"
)

// DeserializationError reports a rejected write. The record is unchanged.
type DeserializationError struct {
	Record string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Record, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Registry holds the two configuration records.
type Registry struct {
	shotMu sync.Mutex
	shot   ShotConfig

	machineMu sync.Mutex
	machine   MachineConfig
}

// New returns a Registry holding the given records.
func New(shot ShotConfig, machine MachineConfig) *Registry {
	return &Registry{shot: shot.clone(), machine: machine}
}

// Shot returns a copy of the shot configuration.
func (r *Registry) Shot() ShotConfig {
	r.shotMu.Lock()
	defer r.shotMu.Unlock()
	return r.shot.clone()
}

// SetShot validates and replaces the shot configuration.
func (r *Registry) SetShot(c ShotConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.shotMu.Lock()
	defer r.shotMu.Unlock()
	r.shot = c.clone()
	return nil
}

// Machine returns a copy of the machine configuration.
func (r *Registry) Machine() MachineConfig {
	r.machineMu.Lock()
	defer r.machineMu.Unlock()
	return r.machine
}

// SetMachine validates and replaces the machine configuration.
func (r *Registry) SetMachine(c MachineConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.machineMu.Lock()
	defer r.machineMu.Unlock()
	r.machine = c
	return nil
}

// UpdateMachineSnapshot records the latest machine reading.
func (r *Registry) UpdateMachineSnapshot(s MachineSnapshot) {
	r.machineMu.Lock()
	defer r.machineMu.Unlock()
	r.machine.Snapshot = s
}

// ApplyShotJSON decodes a shot_config write over the current record.
// Missing fields keep their values and unknown fields are ignored.
func (r *Registry) ApplyShotJSON(data []byte) (ShotConfig, error) {
	r.shotMu.Lock()
	defer r.shotMu.Unlock()

	next := r.shot.clone()
	if err := json.Unmarshal(data, &next); err != nil {
		return ShotConfig{}, &DeserializationError{Record: RecordShot, Err: err}
	}
	if err := next.Validate(); err != nil {
		return ShotConfig{}, &DeserializationError{Record: RecordShot, Err: err}
	}
	r.shot = next
	return next.clone(), nil
}

// machineWrite is the machine_configuration write format.
type machineWrite struct {
	LED              *bool        `json:"led"`
	Temperature      *uint8       `json:"temperature"`
	BrewTempSetpoint *float32     `json:"brew_temp_setpoint"`
	Mode             *MachineMode `json:"mode"`
	IsSteam          *bool        `json:"is_steam"`
}

// ApplyMachineJSON decodes a machine_configuration write. temperature
// replaces the brew setpoint. The returned LED request is non-nil when the
// write named the LED; the caller is responsible for driving it.
func (r *Registry) ApplyMachineJSON(data []byte) (MachineConfig, *bool, error) {
	var w machineWrite
	if err := json.Unmarshal(data, &w); err != nil {
		return MachineConfig{}, nil, &DeserializationError{Record: RecordMachine, Err: err}
	}

	r.machineMu.Lock()
	defer r.machineMu.Unlock()

	next := r.machine
	if w.LED != nil {
		next.LED = *w.LED
	}
	if w.BrewTempSetpoint != nil {
		next.BrewTempSetpoint = *w.BrewTempSetpoint
	}
	if w.Temperature != nil {
		next.BrewTempSetpoint = float32(*w.Temperature)
	}
	if w.Mode != nil {
		next.Mode = *w.Mode
	}
	if w.IsSteam != nil {
		next.IsSteam = *w.IsSteam
	}
	if err := next.Validate(); err != nil {
		return MachineConfig{}, nil, &DeserializationError{Record: RecordMachine, Err: err}
	}
	r.machine = next
	return next, w.LED, nil
}

// DecodeShotConfig decodes a complete shot configuration; missing fields
// take their defaults.
func DecodeShotConfig(data []byte) (ShotConfig, error) {
	c := DefaultShotConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return ShotConfig{}, &DeserializationError{Record: RecordShot, Err: err}
	}
	if err := c.Validate(); err != nil {
		return ShotConfig{}, &DeserializationError{Record: RecordShot, Err: err}
	}
	return c, nil
}

const (
	maxPressure = 12  // bar, end of the pump model's range
	maxSetpoint = 160 // °C
)

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// Validate checks the shot configuration.
func (c ShotConfig) Validate() error {
	for name, v := range map[string]float32{
		"grains_weight_in": c.GrainsWeightIn,
		"espresso_yield":   c.EspressoYield,
		"pressure":         c.Pressure,
		"flow_restriction": c.FlowRestriction,
	} {
		if !finite(v) {
			return fmt.Errorf("%s is not a number", name)
		}
	}
	if c.GrainsWeightIn < 0 || c.EspressoYield < 0 {
		return errors.New("dose and yield must not be negative")
	}
	if c.Pressure < 0 || c.Pressure > maxPressure {
		return fmt.Errorf("pressure %.1f outside 0..%d bar", c.Pressure, maxPressure)
	}
	if w, ok := c.FinalWeight(); ok && (!finite(w) || w <= 0) {
		return fmt.Errorf("override_final_weight %v must be positive", w)
	}
	if c.OverrideShotTime != nil && *c.OverrideShotTime == 0 {
		return errors.New("override_shot_time must be positive")
	}
	if c.Initialisation != AnalogButton && c.Initialisation != Program {
		return fmt.Errorf("unknown initialisation %d", int(c.Initialisation))
	}
	return nil
}

// Validate checks the machine configuration.
func (c MachineConfig) Validate() error {
	if _, ok := modeNames[c.Mode]; !ok {
		return fmt.Errorf("unknown machine mode %d", int(c.Mode))
	}
	if !finite(c.BrewTempSetpoint) || c.BrewTempSetpoint < 0 || c.BrewTempSetpoint > maxSetpoint {
		return fmt.Errorf("brew_temp_setpoint %v outside 0..%d °C", c.BrewTempSetpoint, maxSetpoint)
	}
	return nil
}
