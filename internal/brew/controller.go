// Package brew runs the control tick: it owns the machine's outputs, takes
// snapshots, runs the brew state machine and drives the pump.
package brew

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/gpio"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/pump"
	"github.com/sweeney/espresso/internal/registry"
)

// Hardware are the lines owned by the control tick. Steam, Boiler and LED
// may be nil.
type Hardware struct {
	Trigger gpio.Input
	Steam   gpio.Input
	Valve   gpio.Output
	Boiler  gpio.Output
	LED     gpio.Output
}

// Notifier receives every snapshot and shot event.
type Notifier interface {
	NotifySnapshot(s espresso.Snapshot)
	NotifyEvent(e logic.Event)
}

// Config wires a Controller.
type Config struct {
	Hardware Hardware
	Actuator *pump.Actuator
	Builder  *espresso.Builder
	Registry *registry.Registry
	Machine  *logic.Machine
	Notifier Notifier
	Commands *Queue

	// IdleSnapshotEvery takes a telemetry snapshot every n idle ticks;
	// 0 disables idle snapshots.
	IdleSnapshotEvery int
}

// Controller executes one control tick at a time. Tick must not be called
// concurrently.
type Controller struct {
	hw       Hardware
	actuator *pump.Actuator
	builder  *espresso.Builder
	reg      *registry.Registry
	machine  *logic.Machine
	notify   Notifier
	commands *Queue

	idleEvery int
	idleTicks int

	valveOpen  bool
	boilerOn   bool
	boilerSet  bool
	steamSince time.Time
	boilerTemp float32
	latest     espresso.Snapshot
}

// New returns a Controller. The valve is closed and the pump is off.
func New(cfg Config) *Controller {
	c := &Controller{
		hw:        cfg.Hardware,
		actuator:  cfg.Actuator,
		builder:   cfg.Builder,
		reg:       cfg.Registry,
		machine:   cfg.Machine,
		notify:    cfg.Notifier,
		commands:  cfg.Commands,
		idleEvery: cfg.IdleSnapshotEvery,
	}
	if c.commands == nil {
		c.commands = NewQueue(DefaultQueueSize)
	}
	c.setValve(false)
	if err := c.actuator.Off(); err != nil {
		log.Printf("pump off: %v", err)
	}
	return c
}

// Commands returns the queue drained at the start of every tick.
func (c *Controller) Commands() *Queue {
	return c.commands
}

// Machine returns the brew state machine.
func (c *Controller) Machine() *logic.Machine {
	return c.machine
}

// Latest returns the last snapshot published.
func (c *Controller) Latest() espresso.Snapshot {
	return c.latest
}

// Tick runs one control cycle at time now.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	c.commands.drain(c)

	trigger, err := c.hw.Trigger.Read()
	if err != nil {
		log.Printf("trigger read error: %v", err)
		trigger = false
	}

	// Local copies: the tick sees either the old or the new record, never
	// a mix.
	shot := c.reg.Shot()
	mc := c.reg.Machine()

	c.setBoiler(mc.Mode != registry.Descale)

	d := c.machine.Begin(logic.Input{
		Trigger: trigger,
		Manual:  mc.Mode == registry.ManualBrew && shot.Initialisation == registry.AnalogButton,
		Time:    now,
	})
	c.events(d.Events)

	snapped := false
	switch {
	case d.Start:
		c.setValve(true)
		c.builder.Reset()
	case d.Stop:
		c.stopShot()
		if d.FinalSnapshot {
			c.snapshot(ctx)
			snapped = true
		}
	}

	if d.Snapshot {
		s, err := c.snapshot(ctx)
		snapped = true

		obs := logic.Observation{Time: s.Time, Weight: s.EstimatedWeight, Err: err}
		od := c.machine.Observe(obs, limits(shot))
		c.events(od.Events)

		switch {
		case od.Stop:
			c.stopShot()
		case od.Actuate:
			if _, err := c.actuator.SetPressure(shot.Pressure, shot.FlowRestriction, s.PumpState()); err != nil {
				log.Printf("pump actuation error: %v", err)
			}
		}
	}

	if c.machine.State() == logic.StateIdle {
		if retried, err := c.actuator.Retry(); retried && err != nil {
			log.Printf("pump off retry: %v", err)
		}
		if !snapped && c.idleEvery > 0 {
			c.idleTicks++
			if c.idleTicks >= c.idleEvery {
				c.idleTicks = 0
				c.snapshot(ctx)
			}
		}
	}

	c.updateMachineSnapshot(trigger, now)
}

// Shutdown leaves the machine safe: pump off, valve closed, boiler off.
func (c *Controller) Shutdown() {
	c.stopShot()
	c.setBoiler(false)
}

func (c *Controller) snapshot(ctx context.Context) (espresso.Snapshot, error) {
	s, err := c.builder.Next(ctx)
	if err != nil {
		log.Printf("snapshot error: %v", err)
	} else {
		c.boilerTemp = s.BoilerTemp
	}
	c.latest = s
	if c.notify != nil {
		c.notify.NotifySnapshot(s)
	}
	return s, err
}

func (c *Controller) events(events []logic.Event) {
	for _, e := range events {
		if e.Type == logic.EventShotStop {
			log.Printf("event: %s reason=%s duration=%v weight=%.1f", e.Type, e.Reason, e.Duration, e.Weight)
		} else {
			log.Printf("event: %s", e.Type)
		}
		if c.notify != nil {
			c.notify.NotifyEvent(e)
		}
	}
}

func (c *Controller) stopShot() {
	if err := c.actuator.Off(); err != nil {
		log.Printf("pump off: %v", err)
	}
	c.setValve(false)
}

func (c *Controller) setValve(open bool) {
	if err := c.hw.Valve.Set(open); err != nil {
		log.Printf("valve error: %v", err)
		return
	}
	c.valveOpen = open
}

func (c *Controller) setBoiler(on bool) {
	if c.hw.Boiler == nil || (c.boilerSet && c.boilerOn == on) {
		return
	}
	if err := c.hw.Boiler.Set(on); err != nil {
		log.Printf("boiler relay error: %v", err)
		return
	}
	c.boilerOn, c.boilerSet = on, true
}

func (c *Controller) updateMachineSnapshot(trigger bool, now time.Time) {
	steam := false
	if c.hw.Steam != nil {
		v, err := c.hw.Steam.Read()
		if err != nil {
			log.Printf("steam button read error: %v", err)
		}
		steam = v && err == nil
	}

	var steamOn float32
	switch {
	case !steam:
		c.steamSince = time.Time{}
	case c.steamSince.IsZero():
		c.steamSince = now
	default:
		steamOn = float32(now.Sub(c.steamSince).Seconds())
	}

	raw, _ := c.actuator.Last()
	c.reg.UpdateMachineSnapshot(registry.MachineSnapshot{
		BoilerTemp:        c.boilerTemp,
		PumpPct:           float32(raw) / float32(pump.Range),
		ValveOpen:         c.valveOpen,
		BoilerOn:          c.boilerOn,
		BrewButton:        trigger,
		SteamButton:       steam,
		SteamButtonOnTime: steamOn,
	})
}

func limits(shot registry.ShotConfig) logic.Limits {
	var l logic.Limits
	if w, ok := shot.FinalWeight(); ok {
		l.FinalWeight = &w
	}
	if d, ok := shot.ShotTime(); ok {
		l.ShotTime = &d
	}
	return l
}
