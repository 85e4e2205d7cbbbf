package mqtt

import (
	"sync"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// FakeSurface records notifications for test assertions.
type FakeSurface struct {
	mu sync.Mutex

	// Snapshots contains every snapshot notified.
	Snapshots []espresso.Snapshot

	// Events contains every shot event notified.
	Events []logic.Event

	// EventPayloads contains the JSON payloads of the shot events.
	EventPayloads [][]byte

	// ShotConfigs and MachineConfigs contain every configuration notified.
	ShotConfigs    []registry.ShotConfig
	MachineConfigs []registry.MachineConfig

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Handler receives writes injected with Write.
	Handler WriteHandler
}

// NewFakeSurface creates a FakeSurface for testing.
func NewFakeSurface() *FakeSurface {
	return &FakeSurface{}
}

// NotifySnapshot records the snapshot.
func (f *FakeSurface) NotifySnapshot(s espresso.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = append(f.Snapshots, s)
}

// NotifyEvent records the shot event and its payload.
func (f *FakeSurface) NotifyEvent(e logic.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, e)
	if payload, err := FormatEventPayload(e); err == nil {
		f.EventPayloads = append(f.EventPayloads, payload)
	}
}

// NotifyShotConfig records the shot configuration.
func (f *FakeSurface) NotifyShotConfig(c registry.ShotConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ShotConfigs = append(f.ShotConfigs, c)
}

// NotifyMachineConfig records the machine configuration.
func (f *FakeSurface) NotifyMachineConfig(c registry.MachineConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MachineConfigs = append(f.MachineConfigs, c)
}

// PublishSystem records the system event.
func (f *FakeSurface) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Write delivers a write to Handler as if it arrived on a /set topic.
func (f *FakeSurface) Write(characteristic string, payload []byte) error {
	return f.Handler.HandleWrite(characteristic, payload)
}

// Close marks the surface as closed.
func (f *FakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake surface is "connected".
func (f *FakeSurface) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventCount returns the number of shot events recorded.
func (f *FakeSurface) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// Reset clears recorded notifications.
func (f *FakeSurface) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = nil
	f.Events = nil
	f.EventPayloads = nil
	f.ShotConfigs = nil
	f.MachineConfigs = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishSystemError = nil
	f.Connected = false
}
