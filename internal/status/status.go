// Package status provides a thread-safe status tracker for the espresso
// daemon. It is written by the control loop and read by HTTP handlers and
// system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	WindowMs    int64
	HeartbeatMs int64
	Broker      string
	Prefix      string // MQTT topic prefix
	HTTPPort    string
	BLEPort     string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	Simulated   bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Counts        logic.ShotCounts
	ShotStart     time.Time
	Latest        *espresso.Snapshot
	Machine       registry.MachineConfig
	Shot          registry.ShotConfig
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the brew state and shot counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(state logic.State, shotStart time.Time, counts logic.ShotCounts) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.ShotStart = shotStart
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetSnapshot records the latest espresso snapshot. The stored value is
// never mutated, so snapshots may share it.
func (t *Tracker) SetSnapshot(s espresso.Snapshot) {
	t.mu.Lock()
	t.snap.Latest = &s
	t.mu.Unlock()
}

// SetConfig records the registry's current records.
func (t *Tracker) SetConfig(shot registry.ShotConfig, machine registry.MachineConfig) {
	t.mu.Lock()
	t.snap.Shot = shot
	t.snap.Machine = machine
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
