// Package pump drives the vibratory pump through a phase-skipping modulator.
//
// The flow model is calibrated per AC half-cycle ("click"): the amount of
// water a single click moves falls off with the pressure the pump works
// against. Pressure and flow controllers convert a target into the fraction
// of available clicks the modulator should fire.
package pump

import "github.com/chewxy/math32"

// Model constants for a vibratory pump.
var pressureInefficiency = [7]float32{0.045, 0.015, 0.0033, 0.000685, 0.000045, 0.009, -0.0018}

const (
	// FlowPerClickAtZeroBar is the flow of one click in grams at 0 bar.
	FlowPerClickAtZeroBar float32 = 0.27
	// FlowPerClickMultiplier scales the calibrated curve to this pump.
	FlowPerClickMultiplier float32 = 1.2
	// MaxClicksPerSecond is the click rate the model normalises duty against.
	MaxClicksPerSecond = 50
	// Range is the raw duty range accepted by the modulator.
	Range uint8 = 100

	// minPressure guards the 1/p term.
	minPressure float32 = 0.01
	// minFlowPerClick keeps the curve positive past its calibrated range
	// (the polynomial crosses zero near 11.6 bar).
	minFlowPerClick float32 = 0.001
)

// FlowPerClick returns the grams of water one click moves at the given
// pressure in bar.
func FlowPerClick(pressure float32) float32 {
	p := math32.Max(pressure, minPressure)
	k := pressureInefficiency

	fpc := (k[5]/p+k[6])*(-p*p) +
		(FlowPerClickAtZeroBar - k[0]) -
		(k[1]+(k[2]-(k[3]-k[4]*p)*p)*p)*p
	fpc *= FlowPerClickMultiplier

	return math32.Max(fpc, minFlowPerClick)
}

// Flow returns the pump flow in g/s for a click rate and pressure.
func Flow(cps int, pressure float32) float32 {
	if cps <= 0 {
		return 0
	}
	return float32(cps) * FlowPerClick(pressure)
}

// ClicksForFlow returns the click rate needed to move flow g/s at pressure,
// capped at MaxClicksPerSecond.
func ClicksForFlow(flow, pressure float32) float32 {
	if flow <= 0 {
		return 0
	}
	return math32.Min(MaxClicksPerSecond, flow/FlowPerClick(pressure))
}
