// Package espresso builds the per-tick snapshot of the machine's sensors and
// keeps the short history used to estimate derivatives.
package espresso

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/chewxy/math32"

	"github.com/sweeney/espresso/internal/pump"
	"github.com/sweeney/espresso/internal/sensors"
)

// Snapshot is one timestamped read of every sensor plus derived quantities.
// Fields whose sensor failed are NaN.
type Snapshot struct {
	Pressure              float32       // bar
	BoilerTemp            float32       // °C
	EstimatedEspressoFlow float32       // g/s
	MeasuredFlow          sensors.Flow  // g/s
	PumpFlow              float32       // g/s
	EspressoFlow          float32       // g/s
	EstimatedWeight       float32       // g
	Time                  time.Time
	Elapsed               time.Duration // since the previous snapshot, 0 on the first
	PressureChangeSpeed   float32       // bar/s
	CPS                   int
}

// PumpState returns the inputs the pump controllers work from.
func (s Snapshot) PumpState() pump.State {
	return pump.State{
		Pressure:            s.Pressure,
		PumpFlow:            s.PumpFlow,
		PressureChangeSpeed: s.PressureChangeSpeed,
	}
}

// partial returns a snapshot with every measurement NaN.
func partial(t time.Time) Snapshot {
	nan := math32.NaN()
	return Snapshot{
		Pressure:              nan,
		BoilerTemp:            nan,
		EstimatedEspressoFlow: nan,
		MeasuredFlow:          sensors.Flow{Enter: nan, Exit: nan},
		PumpFlow:              nan,
		EspressoFlow:          nan,
		EstimatedWeight:       nan,
		Time:                  t,
		PressureChangeSpeed:   nan,
	}
}

// number encodes NaN and infinities as JSON null.
type number float32

func (n number) MarshalJSON() ([]byte, error) {
	f := float32(n)
	if math32.IsNaN(f) || math32.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(f), 'g', -1, 32), nil
}

func (n *number) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*n = number(math32.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 32)
	if err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type wireFlow struct {
	Enter number `json:"enter"`
	Exit  number `json:"exit"`
}

type wireSnapshot struct {
	Pressure              number    `json:"pressure"`
	BoilerTemp            number    `json:"boiler_temp"`
	EstimatedEspressoFlow number    `json:"estimated_espresso_flow"`
	MeasuredFlow          wireFlow  `json:"measured_flow"`
	PumpFlow              number    `json:"pump_flow"`
	EspressoFlow          number    `json:"espresso_flow"`
	EstimatedWeight       number    `json:"estimated_weight"`
	Time                  time.Time `json:"time"`
	Elapsed               float64   `json:"elapsed_time_from_last_read"` // seconds
	PressureChangeSpeed   number    `json:"pressure_change_speed"`
	CPS                   int       `json:"cps"`
}

// MarshalJSON encodes the snapshot_state characteristic value.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSnapshot{
		Pressure:              number(s.Pressure),
		BoilerTemp:            number(s.BoilerTemp),
		EstimatedEspressoFlow: number(s.EstimatedEspressoFlow),
		MeasuredFlow:          wireFlow{Enter: number(s.MeasuredFlow.Enter), Exit: number(s.MeasuredFlow.Exit)},
		PumpFlow:              number(s.PumpFlow),
		EspressoFlow:          number(s.EspressoFlow),
		EstimatedWeight:       number(s.EstimatedWeight),
		Time:                  s.Time,
		Elapsed:               s.Elapsed.Seconds(),
		PressureChangeSpeed:   number(s.PressureChangeSpeed),
		CPS:                   s.CPS,
	})
}

// UnmarshalJSON decodes a snapshot_state value. null fields become NaN.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Snapshot{
		Pressure:              float32(w.Pressure),
		BoilerTemp:            float32(w.BoilerTemp),
		EstimatedEspressoFlow: float32(w.EstimatedEspressoFlow),
		MeasuredFlow:          sensors.Flow{Enter: float32(w.MeasuredFlow.Enter), Exit: float32(w.MeasuredFlow.Exit)},
		PumpFlow:              float32(w.PumpFlow),
		EspressoFlow:          float32(w.EspressoFlow),
		EstimatedWeight:       float32(w.EstimatedWeight),
		Time:                  w.Time,
		Elapsed:               time.Duration(w.Elapsed * float64(time.Second)),
		PressureChangeSpeed:   float32(w.PressureChangeSpeed),
		CPS:                   w.CPS,
	}
	return nil
}
