// Package logic contains the pure brew state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the brew state.
type State string

const (
	StateIdle    State = "IDLE"
	StateBrewing State = "BREWING"
)

// StopReason says why a shot ended.
type StopReason string

const (
	StopTriggerReleased StopReason = "TRIGGER_RELEASED"
	StopTargetWeight    StopReason = "TARGET_WEIGHT"
	StopTargetTime      StopReason = "TARGET_TIME"
	StopSensorFault     StopReason = "SENSOR_FAULT"
)

// EventType represents a shot transition event.
type EventType string

const (
	EventShotStart EventType = "SHOT_START"
	EventShotStop  EventType = "SHOT_STOP"
)

// Event represents a shot transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    StopReason    // SHOT_STOP only
	Duration  time.Duration // SHOT_STOP only
	Weight    float32       // SHOT_STOP only, g
}

// Input is sampled at the top of every control tick.
type Input struct {
	Trigger bool // brew button asserted
	// Manual is true when the machine mode and shot initialisation let the
	// button drive the shot.
	Manual bool
	Time   time.Time
}

// Limits are the optional terminal conditions of a shot.
type Limits struct {
	FinalWeight *float32       // g
	ShotTime    *time.Duration
}

// Observation is the outcome of the tick's snapshot.
type Observation struct {
	Time   time.Time
	Weight float32 // estimated weight, g
	Err    error
}

// Decision tells the controller what to do this tick.
type Decision struct {
	// Start: open the valve and reset the snapshot builder.
	Start bool
	// Snapshot: take a snapshot and report it through Observe.
	Snapshot bool
	// Actuate: run the pressure controller on the snapshot.
	Actuate bool
	// Stop: close the valve and turn the pump off.
	Stop   bool
	Reason StopReason
	// FinalSnapshot: take one more snapshot after stopping.
	FinalSnapshot bool

	Events []Event
}

// ShotCounts tracks shots since startup.
type ShotCounts struct {
	Started   int
	Released  int // stopped by the trigger
	Completed int // stopped by a weight or time limit
	FailSafe  int // stopped by consecutive sensor errors
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    ShotCounts
}
