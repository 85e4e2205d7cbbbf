// Package mqtt carries the machine's attribute surface over MQTT.
//
// Each characteristic is a retained topic under a prefix; writes arrive on
// the characteristic topic with a /set suffix. Shot events and system
// lifecycle events have their own topics.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/espresso/internal/dispatch"
	"github.com/sweeney/espresso/internal/logic"
)

// DefaultPrefix is the topic prefix of the machine.
const DefaultPrefix = "espresso/machine"

// Topic suffixes under the prefix.
const (
	suffixSet    = "/set"
	suffixEvents = "events"
	suffixSystem = "system"
)

// Topics resolves topic names under a prefix.
type Topics struct {
	Prefix string
}

// Characteristic returns the state topic of a characteristic.
func (t Topics) Characteristic(name string) string {
	return t.Prefix + "/" + name
}

// Set returns the write topic of a characteristic.
func (t Topics) Set(name string) string {
	return t.Characteristic(name) + suffixSet
}

// Events returns the shot event topic.
func (t Topics) Events() string {
	return t.Prefix + "/" + suffixEvents
}

// System returns the system lifecycle topic.
func (t Topics) System() string {
	return t.Prefix + "/" + suffixSystem
}

// WriteCharacteristic returns the characteristic a /set topic addresses.
func (t Topics) WriteCharacteristic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, suffixSet)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Surface publishes the attribute surface.
type Surface interface {
	dispatch.Surface

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// EventPayload represents the MQTT message payload for a shot event.
type EventPayload struct {
	Shot ShotPayload `json:"shot"`
}

// ShotPayload contains the shot event details.
type ShotPayload struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Reason    string   `json:"reason,omitempty"`
	Duration  *float64 `json:"duration_s,omitempty"`
	Weight    *float32 `json:"weight_g,omitempty"`
}

// FormatEventPayload creates the JSON payload for a shot event.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	p := ShotPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
	}
	if event.Type == logic.EventShotStop {
		d := event.Duration.Seconds()
		w := event.Weight
		p.Reason = string(event.Reason)
		p.Duration = &d
		p.Weight = &w
	}
	return json.Marshal(EventPayload{Shot: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willPayload is published by the broker when the connection drops.
func willPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE"}})
	return b
}
