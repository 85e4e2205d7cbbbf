package logic

import "time"

// FailSafeErrors is the number of consecutive snapshot errors that ends a
// shot.
const FailSafeErrors = 2

// Machine is the Idle/Brewing state machine. Each control tick calls Begin
// with the trigger and, when asked to, Observe with the snapshot outcome.
type Machine struct {
	state     State
	shotStart time.Time
	failures  int
	// After a stop not caused by the trigger, the trigger must be released
	// before a new shot can start.
	needRelease bool

	startTime     time.Time
	shotCounts    ShotCounts
	lastHeartbeat time.Time
}

// NewMachine creates an idle state machine.
// The startTime is used for calculating uptime in heartbeat events.
func NewMachine(startTime time.Time) *Machine {
	return &Machine{
		state:         StateIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Begin processes the trigger at the top of a tick. Trigger release is
// checked before any snapshot is taken.
func (m *Machine) Begin(in Input) Decision {
	switch m.state {
	case StateIdle:
		if !in.Trigger {
			m.needRelease = false
			return Decision{}
		}
		if m.needRelease || !in.Manual {
			return Decision{}
		}
		m.state = StateBrewing
		m.shotStart = in.Time
		m.failures = 0
		m.shotCounts.Started++
		return Decision{
			Start:    true,
			Snapshot: true,
			Events:   []Event{{Timestamp: in.Time, Type: EventShotStart}},
		}

	case StateBrewing:
		if !in.Trigger {
			d := m.stop(in.Time, StopTriggerReleased, 0)
			d.FinalSnapshot = true
			return d
		}
		return Decision{Snapshot: true}
	}
	return Decision{}
}

// Observe processes the tick's snapshot. A single error skips actuation;
// FailSafeErrors in a row end the shot. Limits are checked after every good
// snapshot.
func (m *Machine) Observe(obs Observation, limits Limits) Decision {
	if m.state != StateBrewing {
		return Decision{}
	}

	if obs.Err != nil {
		m.failures++
		if m.failures >= FailSafeErrors {
			return m.stop(obs.Time, StopSensorFault, 0)
		}
		return Decision{}
	}
	m.failures = 0

	if limits.FinalWeight != nil && obs.Weight >= *limits.FinalWeight {
		return m.stop(obs.Time, StopTargetWeight, obs.Weight)
	}
	if limits.ShotTime != nil && obs.Time.Sub(m.shotStart) >= *limits.ShotTime {
		return m.stop(obs.Time, StopTargetTime, obs.Weight)
	}
	return Decision{Actuate: true}
}

func (m *Machine) stop(now time.Time, reason StopReason, weight float32) Decision {
	m.state = StateIdle
	m.failures = 0
	m.needRelease = reason != StopTriggerReleased

	switch reason {
	case StopTriggerReleased:
		m.shotCounts.Released++
	case StopTargetWeight, StopTargetTime:
		m.shotCounts.Completed++
	case StopSensorFault:
		m.shotCounts.FailSafe++
	}

	return Decision{
		Stop:   true,
		Reason: reason,
		Events: []Event{{
			Timestamp: now,
			Type:      EventShotStop,
			Reason:    reason,
			Duration:  now.Sub(m.shotStart),
			Weight:    weight,
		}},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// ShotStart returns when the current or last shot started.
func (m *Machine) ShotStart() time.Time {
	return m.shotStart
}

// Counts returns the shot counts since startup.
func (m *Machine) Counts() ShotCounts {
	return m.shotCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.shotCounts,
	}
}
