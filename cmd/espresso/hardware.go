package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/espresso/internal/brew"
	"github.com/sweeney/espresso/internal/config"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/gpio"
	"github.com/sweeney/espresso/internal/i2cdev"
	"github.com/sweeney/espresso/internal/psm"
	"github.com/sweeney/espresso/internal/pump"
	"github.com/sweeney/espresso/internal/sensors"
	"github.com/sweeney/espresso/internal/sim"
	"github.com/sweeney/espresso/internal/zerocross"
)

// pumpChannel is the modulator channel of the pump triac.
const pumpChannel = 0

// Blink codes shown on the status LED when bring-up fails.
const (
	blinkGPIO = 3
	blinkI2C  = 4
	blinkPSM  = 5
)

// peripherals is everything the control tick reads from and drives.
type peripherals struct {
	hw       brew.Hardware
	sources  espresso.Sources
	actuator *pump.Actuator

	closers []func() error
}

func (p *peripherals) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// zeroCrossHandler feeds every edge to the click counter and the modulator.
// A failed pump line write reaches the control tick through the next
// SetPower; here it is only logged, at most once per errorLogInterval.
func zeroCrossHandler(counter *zerocross.Counter, mod *psm.Modulator, now func() time.Time) func() {
	limit := &errorLimiter{every: errorLogInterval, now: now}
	return func() {
		counter.Edge()
		if err := mod.OnZeroCross(); err != nil {
			limit.log("psm", err)
		}
	}
}

const errorLogInterval = 5 * time.Second

// errorLimiter logs the first error and then at most one per interval,
// counting the ones it swallowed. Edge handlers run 100 times a second.
type errorLimiter struct {
	every time.Duration
	now   func() time.Time

	mu         sync.Mutex
	last       time.Time
	suppressed int
}

func (l *errorLimiter) log(prefix string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if !l.last.IsZero() && t.Sub(l.last) < l.every {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		log.Printf("%s: %v (%d similar errors suppressed)", prefix, err, l.suppressed)
	} else {
		log.Printf("%s: %v", prefix, err)
	}
	l.last = t
	l.suppressed = 0
}

// openHardware requests the GPIO lines, the ADC and the w1 probes.
func openHardware(cfg *config.Config) (*peripherals, error) {
	counter := zerocross.NewCounter(cfg.Control.CPSWindow, cfg.Control.MaxCPS())
	mod := psm.New(pump.Range)
	enter := sensors.NewFlowMeter("flow_enter", cfg.Flow.PulsesPerGram, time.Now)
	exit := sensors.NewFlowMeter("flow_exit", cfg.Flow.PulsesPerGram, time.Now)

	board, err := gpio.NewBoard(cfg.Lines(), gpio.Handlers{
		ZeroCross: zeroCrossHandler(counter, mod, time.Now),
		FlowEnter: enter.Pulse,
		FlowExit:  exit.Pulse,
	})
	if err != nil {
		blinkFailure(cfg, blinkGPIO)
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	p := &peripherals{closers: []func() error{board.Close}}

	if err := mod.AddChannel(pumpChannel, board.Pump()); err != nil {
		p.Close()
		blinkFailure(cfg, blinkPSM)
		return nil, fmt.Errorf("init psm: %w", err)
	}
	p.closers = append(p.closers, mod.Off)

	bus, err := i2cdev.Open(cfg.ADC.Bus)
	if err != nil {
		p.Close()
		blinkFailure(cfg, blinkI2C)
		return nil, fmt.Errorf("init i2c: %w", err)
	}
	p.closers = append(p.closers, bus.Close)

	adc, err := sensors.NewADS1015(bus, cfg.ADC.Address, cfg.ADC.Channel)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init adc: %w", err)
	}

	probes := make([]sensors.Probe, 0, len(cfg.Temperature.Probes))
	for _, id := range cfg.Temperature.Probes {
		probes = append(probes, &sensors.W1Probe{Root: cfg.Temperature.Root, ID: id})
	}
	if len(probes) == 0 {
		log.Printf("no temperature probes configured, boiler temperature will read n/a")
	}

	p.hw = brew.Hardware{
		Trigger: board.Trigger(),
		Steam:   board.Steam(),
		Valve:   board.Valve(),
		Boiler:  board.Boiler(),
		LED:     board.LED(),
	}
	p.sources = espresso.Sources{
		Pressure:    sensors.NewPressureSensor(adc),
		Temperature: sensors.NewThermometer(probes...),
		Flow:        sensors.FlowPair{Enter: enter, Exit: exit},
		Clicks:      counter,
	}
	p.actuator = pump.NewActuator(mod, pumpChannel)
	return p, nil
}

// Simulated shot cadence: the brew button presses itself for a shot every
// period.
const (
	simShotPeriod = 60 * time.Second
	simShotLength = 25 * time.Second
)

// openSimulation wires the plant model in place of the hardware. The
// zero-crossing simulator runs until ctx is cancelled.
func openSimulation(ctx context.Context, cfg *config.Config) (*peripherals, error) {
	counter := zerocross.NewCounter(cfg.Control.CPSWindow, cfg.Control.MaxCPS())
	mod := psm.New(pump.Range)
	plant := sim.New(mod, pumpChannel, time.Now)

	if err := mod.AddChannel(pumpChannel, plant.Pump); err != nil {
		return nil, fmt.Errorf("init psm: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	zc := &zerocross.Simulator{
		Rate:     cfg.Control.LineFrequency,
		Handlers: []func(){zeroCrossHandler(counter, mod, time.Now)},
	}
	go zc.Run(ctx)

	p := &peripherals{
		hw: brew.Hardware{
			Trigger: sim.NewButton(simShotPeriod, simShotLength, time.Now),
			Valve:   plant.Valve,
			Boiler:  plant.Boiler,
			LED:     plant.LED,
		},
		sources: espresso.Sources{
			Pressure:    plant,
			Temperature: plant,
			Flow:        plant,
			Clicks:      counter,
		},
		actuator: pump.NewActuator(mod, pumpChannel),
		closers: []func() error{
			func() error { cancel(); return nil },
			mod.Off,
		},
	}
	return p, nil
}

// blinkFailure flashes code on the LED when the board itself could not be
// brought up.
func blinkFailure(cfg *config.Config, code int) {
	if cfg.GPIO.LED < 0 {
		return
	}
	led, release, err := gpio.OpenLED(cfg.GPIO.Chip, cfg.GPIO.LED)
	if err != nil {
		log.Printf("status led unavailable: %v", err)
		return
	}
	defer release()
	gpio.Blink(led, code, 500*time.Millisecond)
}
