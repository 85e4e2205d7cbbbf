package registry

import (
	"fmt"
	"time"
)

// MachineMode selects what the brew trigger does.
type MachineMode int

const (
	ManualBrew MachineMode = iota
	ShotProfiling
	Steam
	Descale
)

var modeNames = map[MachineMode]string{
	ManualBrew:    "ManualBrew",
	ShotProfiling: "ShotProfiling",
	Steam:         "Steam",
	Descale:       "Descale",
}

func (m MachineMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MachineMode(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m MachineMode) MarshalText() ([]byte, error) {
	s, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown machine mode %d", int(m))
	}
	return []byte(s), nil
}

// UnmarshalText decodes a mode name.
func (m *MachineMode) UnmarshalText(text []byte) error {
	for k, v := range modeNames {
		if v == string(text) {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("unknown machine mode %q", text)
}

// Initialisation selects what starts a shot.
type Initialisation int

const (
	// AnalogButton starts and stops the shot with the brew trigger.
	AnalogButton Initialisation = iota
	// Program starts the shot from a wireless request.
	Program
)

func (i Initialisation) String() string {
	switch i {
	case AnalogButton:
		return "AnalogButton"
	case Program:
		return "Program"
	default:
		return fmt.Sprintf("Initialisation(%d)", int(i))
	}
}

// MarshalText encodes the initialisation by name.
func (i Initialisation) MarshalText() ([]byte, error) {
	switch i {
	case AnalogButton, Program:
		return []byte(i.String()), nil
	}
	return nil, fmt.Errorf("unknown initialisation %d", int(i))
}

// UnmarshalText decodes an initialisation name.
func (i *Initialisation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "AnalogButton":
		*i = AnalogButton
	case "Program":
		*i = Program
	default:
		return fmt.Errorf("unknown initialisation %q", text)
	}
	return nil
}

// ShotConfig is the profile of the next shot.
type ShotConfig struct {
	// Dose in g.
	GrainsWeightIn float32 `json:"grains_weight_in" yaml:"grains_weight_in"`
	// Target ratio of yield to dose.
	EspressoYield float32 `json:"espresso_yield" yaml:"espresso_yield"`
	// Stop the shot at this estimated weight in g.
	OverrideFinalWeight *float32 `json:"override_final_weight" yaml:"override_final_weight"`
	// Stop the shot after this many seconds.
	OverrideShotTime *uint32 `json:"override_shot_time" yaml:"override_shot_time"`
	// Brew pressure target in bar.
	Pressure float32 `json:"pressure" yaml:"pressure"`
	// Pump flow cap in g/s; <= 0 is no cap.
	FlowRestriction float32        `json:"flow_restriction" yaml:"flow_restriction"`
	Initialisation  Initialisation `json:"initialisation" yaml:"initialisation"`
}

// DefaultShotConfig returns the factory shot profile.
func DefaultShotConfig() ShotConfig {
	return ShotConfig{
		GrainsWeightIn:  16,
		EspressoYield:   2,
		Pressure:        9,
		FlowRestriction: 2,
		Initialisation:  AnalogButton,
	}
}

// FinalWeight returns the override weight, if set.
func (c ShotConfig) FinalWeight() (float32, bool) {
	if c.OverrideFinalWeight == nil {
		return 0, false
	}
	return *c.OverrideFinalWeight, true
}

// ShotTime returns the override duration, if set.
func (c ShotConfig) ShotTime() (time.Duration, bool) {
	if c.OverrideShotTime == nil {
		return 0, false
	}
	return time.Duration(*c.OverrideShotTime) * time.Second, true
}

// clone copies the optional fields so the copy shares no memory.
func (c ShotConfig) clone() ShotConfig {
	if c.OverrideFinalWeight != nil {
		w := *c.OverrideFinalWeight
		c.OverrideFinalWeight = &w
	}
	if c.OverrideShotTime != nil {
		s := *c.OverrideShotTime
		c.OverrideShotTime = &s
	}
	return c
}

// MachineSnapshot is the last reading of the machine's outputs and buttons.
type MachineSnapshot struct {
	BoilerTemp        float32 `json:"boiler_temp"`
	PumpPct           float32 `json:"pump_pct"`
	ValveOpen         bool    `json:"valve_open"`
	BoilerOn          bool    `json:"boiler_on"`
	BrewButton        bool    `json:"brew_button"`
	SteamButton       bool    `json:"steam_button"`
	SteamButtonOnTime float32 `json:"steam_button_on_time"` // s
}

// MachineConfig is the machine-wide configuration.
type MachineConfig struct {
	Mode             MachineMode     `json:"mode" yaml:"mode"`
	BrewTempSetpoint float32         `json:"brew_temp_setpoint" yaml:"brew_temp_setpoint"` // °C
	IsSteam          bool            `json:"is_steam" yaml:"is_steam"`
	LED              bool            `json:"led" yaml:"-"`
	Snapshot         MachineSnapshot `json:"snapshot" yaml:"-"`
}

// DefaultMachineConfig returns the factory machine configuration.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Mode:             ManualBrew,
		BrewTempSetpoint: 90,
	}
}
