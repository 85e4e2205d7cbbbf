package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                 `json:"event,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	State         string                 `json:"state"`
	ShotSeconds   *float64               `json:"shot_seconds,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     string                 `json:"start_time"`
	Timestamp     string                 `json:"timestamp"`
	MQTT          MQTTStatus             `json:"mqtt"`
	Counts        CountsJSON             `json:"shot_counts"`
	Snapshot      *espresso.Snapshot     `json:"snapshot"`
	Machine       registry.MachineConfig `json:"machine_configuration"`
	Shot          registry.ShotConfig    `json:"shot_config"`
	Network       *NetworkJSON           `json:"network,omitempty"`
	Config        ConfigJSON             `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix"`
}

// CountsJSON is the JSON representation of shot counts.
type CountsJSON struct {
	Started   int `json:"started"`
	Released  int `json:"released"`
	Completed int `json:"completed"`
	FailSafe  int `json:"fail_safe"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	WindowMs    int64  `json:"cps_window_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	BLEPort     string `json:"ble_port,omitempty"`
	WSBroker    string `json:"ws_broker,omitempty"`
	Simulated   bool   `json:"simulated,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker, Prefix: snap.Config.Prefix},
		Counts: CountsJSON{
			Started:   snap.Counts.Started,
			Released:  snap.Counts.Released,
			Completed: snap.Counts.Completed,
			FailSafe:  snap.Counts.FailSafe,
		},
		Snapshot: snap.Latest,
		Machine:  snap.Machine,
		Shot:     snap.Shot,
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			WindowMs:    snap.Config.WindowMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			BLEPort:     snap.Config.BLEPort,
			WSBroker:    snap.Config.WSBroker,
			Simulated:   snap.Config.Simulated,
		},
	}
	if snap.State == logic.StateBrewing && !snap.ShotStart.IsZero() {
		s := snap.Now.Sub(snap.ShotStart).Seconds()
		inner.ShotSeconds = &s
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
