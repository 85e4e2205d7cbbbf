package status

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 100, WindowMs: 100, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 100 {
		t.Errorf("Config.TickMs: got %d, want 100", snap.Config.TickMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Latest != nil {
		t.Error("expected no espresso snapshot initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	shotStart := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)

	tr.Update(logic.StateBrewing, shotStart, logic.ShotCounts{Started: 3, Released: 2})

	snap := tr.Snapshot()
	if snap.State != logic.StateBrewing {
		t.Errorf("State: got %q, want BREWING", snap.State)
	}
	if !snap.ShotStart.Equal(shotStart) {
		t.Errorf("ShotStart: got %v, want %v", snap.ShotStart, shotStart)
	}
	if snap.Counts.Started != 3 {
		t.Errorf("Counts.Started: got %d, want 3", snap.Counts.Started)
	}
	if snap.Counts.Released != 2 {
		t.Errorf("Counts.Released: got %d, want 2", snap.Counts.Released)
	}
}

func TestSetSnapshotAndConfig(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetSnapshot(espresso.Snapshot{Pressure: 8.7})
	shot := registry.DefaultShotConfig()
	shot.Pressure = 7
	tr.SetConfig(shot, registry.DefaultMachineConfig())

	snap := tr.Snapshot()
	if snap.Latest == nil || snap.Latest.Pressure != 8.7 {
		t.Errorf("Latest: got %+v", snap.Latest)
	}
	if snap.Shot.Pressure != 7 {
		t.Errorf("Shot.Pressure: got %v, want 7", snap.Shot.Pressure)
	}
	if snap.Machine.BrewTempSetpoint != 90 {
		t.Errorf("Machine.BrewTempSetpoint: got %v, want 90", snap.Machine.BrewTempSetpoint)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(logic.StateBrewing, time.Time{}, logic.ShotCounts{Started: 1})
	tr.SetSnapshot(espresso.Snapshot{Pressure: 1})

	snap1 := tr.Snapshot()

	tr.Update(logic.StateIdle, time.Time{}, logic.ShotCounts{Started: 1, Released: 1})
	tr.SetSnapshot(espresso.Snapshot{Pressure: 2})

	// snap1 should still reflect old state
	if snap1.State != logic.StateBrewing {
		t.Error("snapshot should be a copy; State was modified")
	}
	if snap1.Latest.Pressure != 1 {
		t.Error("snapshot should be a copy; Latest was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	latest := espresso.Snapshot{Pressure: 9.1, BoilerTemp: 93, Time: start.Add(time.Minute)}
	snap := Snapshot{
		State:         logic.StateIdle,
		Counts:        logic.ShotCounts{Started: 5, Released: 2, Completed: 2, FailSafe: 1},
		Latest:        &latest,
		Machine:       registry.DefaultMachineConfig(),
		Shot:          registry.DefaultShotConfig(),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{TickMs: 100, WindowMs: 100, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", parsed.Status.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.MQTT.Connected != true {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.Started != 5 || parsed.Status.Counts.FailSafe != 1 {
		t.Errorf("Counts: got %+v", parsed.Status.Counts)
	}
	if parsed.Status.Snapshot == nil || parsed.Status.Snapshot.Pressure != 9.1 {
		t.Errorf("Snapshot: got %+v", parsed.Status.Snapshot)
	}
	if parsed.Status.Shot.Pressure != 9 {
		t.Errorf("Shot.Pressure: got %v, want 9", parsed.Status.Shot.Pressure)
	}
	if parsed.Status.ShotSeconds != nil {
		t.Error("ShotSeconds should be omitted while idle")
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONBrewing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     logic.StateBrewing,
		ShotStart: start.Add(10 * time.Second),
		StartTime: start,
		Now:       start.Add(22 * time.Second),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.ShotSeconds == nil || *parsed.Status.ShotSeconds != 12 {
		t.Errorf("ShotSeconds: got %v, want 12", parsed.Status.ShotSeconds)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if status["state"] != "UNKNOWN" {
		t.Errorf("state: got %v, want UNKNOWN", status["state"])
	}
	if status["snapshot"] != nil {
		t.Errorf("snapshot: got %v, want null", status["snapshot"])
	}
}

func TestFormatJSONPartialSnapshot(t *testing.T) {
	nan := float32(math.NaN())
	latest := espresso.Snapshot{Pressure: nan, BoilerTemp: 92, Time: time.Unix(50, 0)}
	snap := Snapshot{
		Latest:    &latest,
		StartTime: time.Unix(0, 0),
		Now:       time.Unix(60, 0),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("NaN fields must still encode: %v", err)
	}
	s := raw["status"].(map[string]interface{})["snapshot"].(map[string]interface{})
	if s["pressure"] != nil {
		t.Errorf("pressure: got %v, want null", s["pressure"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:         logic.StateIdle,
		Counts:        logic.ShotCounts{Started: 3},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{TickMs: 100, Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", parsed.Status.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     logic.StateIdle,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		State:     logic.StateIdle,
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.StateBrewing, time.Now(), logic.ShotCounts{Started: i})
			tr.SetSnapshot(espresso.Snapshot{Pressure: float32(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
