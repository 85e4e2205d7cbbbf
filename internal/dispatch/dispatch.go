// Package dispatch serves reads and applies writes on the machine's
// attribute surface. It runs in the transport goroutines and never touches
// hardware: hardware requests are posted to the control tick's queue.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sweeney/espresso/internal/brew"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// Characteristic names.
const (
	SnapshotState        = "snapshot_state"
	ShotConfig           = registry.RecordShot
	MachineConfiguration = registry.RecordMachine
)

// Characteristics lists every characteristic in a stable order.
var Characteristics = []string{SnapshotState, ShotConfig, MachineConfiguration}

var (
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrNotWritable           = errors.New("characteristic is read-only")
)

// Surface receives notifications for every characteristic.
type Surface interface {
	NotifySnapshot(s espresso.Snapshot)
	NotifyEvent(e logic.Event)
	NotifyShotConfig(c registry.ShotConfig)
	NotifyMachineConfig(c registry.MachineConfig)
}

// SnapshotSource returns the latest snapshot.
type SnapshotSource interface {
	Latest() (espresso.Snapshot, bool)
}

// Dispatcher routes reads and writes to the registry and fans
// notifications out to every attached surface.
type Dispatcher struct {
	reg      *registry.Registry
	commands *brew.Queue
	latest   SnapshotSource

	mu       sync.RWMutex
	surfaces []Surface
}

// New returns a Dispatcher. commands may be nil when no hardware is
// attached.
func New(reg *registry.Registry, commands *brew.Queue, latest SnapshotSource) *Dispatcher {
	return &Dispatcher{reg: reg, commands: commands, latest: latest}
}

// Attach adds a surface to notify.
func (d *Dispatcher) Attach(s Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surfaces = append(d.surfaces, s)
}

// HandleWrite applies a write. Rejected writes are logged and leave the
// registry untouched.
func (d *Dispatcher) HandleWrite(characteristic string, payload []byte) error {
	switch characteristic {
	case ShotConfig:
		c, err := d.reg.ApplyShotJSON(payload)
		if err != nil {
			log.Printf("dispatch: discarded %s write: %v", characteristic, err)
			return err
		}
		d.NotifyShotConfig(c)
		return nil

	case MachineConfiguration:
		m, led, err := d.reg.ApplyMachineJSON(payload)
		if err != nil {
			log.Printf("dispatch: discarded %s write: %v", characteristic, err)
			return err
		}
		if led != nil && d.commands != nil {
			d.commands.Post(brew.LEDCommand{On: *led})
		}
		d.NotifyMachineConfig(m)
		return nil

	case SnapshotState:
		return fmt.Errorf("%s: %w", characteristic, ErrNotWritable)
	}
	return fmt.Errorf("%q: %w", characteristic, ErrUnknownCharacteristic)
}

// HandleRead returns the current JSON value of a characteristic. The
// snapshot reads as null before the first snapshot.
func (d *Dispatcher) HandleRead(characteristic string) ([]byte, error) {
	switch characteristic {
	case SnapshotState:
		s, ok := d.latest.Latest()
		if !ok {
			return []byte("null"), nil
		}
		return json.Marshal(s)
	case ShotConfig:
		return json.Marshal(d.reg.Shot())
	case MachineConfiguration:
		return json.Marshal(d.reg.Machine())
	}
	return nil, fmt.Errorf("%q: %w", characteristic, ErrUnknownCharacteristic)
}

func (d *Dispatcher) each(fn func(Surface)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.surfaces {
		fn(s)
	}
}

// NotifySnapshot forwards a snapshot to every surface.
func (d *Dispatcher) NotifySnapshot(s espresso.Snapshot) {
	d.each(func(x Surface) { x.NotifySnapshot(s) })
}

// NotifyEvent forwards a shot event to every surface.
func (d *Dispatcher) NotifyEvent(e logic.Event) {
	d.each(func(x Surface) { x.NotifyEvent(e) })
}

// NotifyShotConfig forwards the shot configuration to every surface.
func (d *Dispatcher) NotifyShotConfig(c registry.ShotConfig) {
	d.each(func(x Surface) { x.NotifyShotConfig(c) })
}

// NotifyMachineConfig forwards the machine configuration to every surface.
func (d *Dispatcher) NotifyMachineConfig(c registry.MachineConfig) {
	d.each(func(x Surface) { x.NotifyMachineConfig(c) })
}

// NotifyAll re-publishes every characteristic, e.g. after a transport
// (re)connects.
func (d *Dispatcher) NotifyAll() {
	d.NotifyShotConfig(d.reg.Shot())
	d.NotifyMachineConfig(d.reg.Machine())
	if s, ok := d.latest.Latest(); ok {
		d.NotifySnapshot(s)
	}
}
