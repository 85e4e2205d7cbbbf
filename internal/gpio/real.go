//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Board owns every line the controller uses, requested from the Linux GPIO
// character device.
type Board struct {
	chip *gpiocdev.Chip

	trigger   *gpiocdev.Line
	steam     *gpiocdev.Line
	zeroCross *gpiocdev.Line
	flowEnter *gpiocdev.Line
	flowExit  *gpiocdev.Line

	pump   *gpiocdev.Line
	boiler *gpiocdev.Line
	valve  *gpiocdev.Line
	led    *gpiocdev.Line
}

// NewBoard requests all lines. Edge handlers run on the gpiocdev event
// goroutine.
func NewBoard(lines Lines, h Handlers) (*Board, error) {
	chip, err := gpiocdev.NewChip(lines.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	b := &Board{chip: chip}

	// Inputs use pull-down to match Pi boot defaults; the buttons are
	// active high.
	if b.trigger, err = b.input(lines.Trigger, lines); err != nil {
		b.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", lines.Trigger, err)
	}
	if b.steam, err = b.input(lines.Steam, lines); err != nil {
		b.Close()
		return nil, fmt.Errorf("request steam pin %d: %w", lines.Steam, err)
	}
	if b.zeroCross, err = b.edge(lines.ZeroCross, h.ZeroCross); err != nil {
		b.Close()
		return nil, fmt.Errorf("request zero-crossing pin %d: %w", lines.ZeroCross, err)
	}
	if b.flowEnter, err = b.edge(lines.FlowEnter, h.FlowEnter); err != nil {
		b.Close()
		return nil, fmt.Errorf("request inlet flow pin %d: %w", lines.FlowEnter, err)
	}
	if b.flowExit, err = b.edge(lines.FlowExit, h.FlowExit); err != nil {
		b.Close()
		return nil, fmt.Errorf("request outlet flow pin %d: %w", lines.FlowExit, err)
	}

	// Outputs start in their safe state: pump, boiler and valve off, LED off
	// (active low).
	if b.pump, err = b.output(lines.Pump, 0); err != nil {
		b.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", lines.Pump, err)
	}
	if b.boiler, err = b.output(lines.Boiler, 0); err != nil {
		b.Close()
		return nil, fmt.Errorf("request boiler pin %d: %w", lines.Boiler, err)
	}
	if b.valve, err = b.output(lines.Valve, 0); err != nil {
		b.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", lines.Valve, err)
	}
	if b.led, err = b.output(lines.LED, 1); err != nil {
		b.Close()
		return nil, fmt.Errorf("request led pin %d: %w", lines.LED, err)
	}

	return b, nil
}

func (b *Board) input(offset int, lines Lines) (*gpiocdev.Line, error) {
	if offset < 0 {
		return nil, nil
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if lines.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(lines.Debounce))
	}
	return b.chip.RequestLine(offset, opts...)
}

func (b *Board) edge(offset int, handler func()) (*gpiocdev.Line, error) {
	if offset < 0 || handler == nil {
		return nil, nil
	}
	return b.chip.RequestLine(offset,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }),
	)
}

func (b *Board) output(offset int, initial int) (*gpiocdev.Line, error) {
	if offset < 0 {
		return nil, nil
	}
	return b.chip.RequestLine(offset, gpiocdev.AsOutput(initial))
}

// Trigger returns the brew button input.
func (b *Board) Trigger() Input { return lineInput{b.trigger, "trigger"} }

// Steam returns the steam button input, or nil if not wired.
func (b *Board) Steam() Input {
	if b.steam == nil {
		return nil
	}
	return lineInput{b.steam, "steam"}
}

// Pump returns the pump triac output driven by the modulator.
func (b *Board) Pump() Output { return lineOutput{b.pump, "pump"} }

// Boiler returns the boiler relay output.
func (b *Board) Boiler() Output { return lineOutput{b.boiler, "boiler"} }

// Valve returns the three-way valve output.
func (b *Board) Valve() Output { return lineOutput{b.valve, "valve"} }

// LED returns the status LED output.
func (b *Board) LED() Output { return lineOutput{b.led, "led"} }

// Close drives outputs to their safe state and releases all lines.
// Inputs are reconfigured to input with pull-down (matching Pi boot
// defaults) before closing.
func (b *Board) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{b.pump, b.boiler, b.valve} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line low: %w", err))
		}
	}
	for _, l := range []*gpiocdev.Line{b.trigger, b.steam, b.zeroCross, b.flowEnter, b.flowExit, b.pump, b.boiler, b.valve, b.led} {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// OpenLED requests only the LED line. Used to report bring-up failures when
// the full board could not be requested.
func OpenLED(chip string, offset int) (Output, func() error, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(1))
	if err != nil {
		return nil, nil, fmt.Errorf("request led pin %d: %w", offset, err)
	}
	return lineOutput{l, "led"}, l.Close, nil
}

type lineInput struct {
	l    *gpiocdev.Line
	name string
}

func (i lineInput) Read() (bool, error) {
	if i.l == nil {
		return false, fmt.Errorf("%s pin not configured", i.name)
	}
	v, err := i.l.Value()
	if err != nil {
		return false, fmt.Errorf("read %s pin: %w", i.name, err)
	}
	return v == 1, nil
}

type lineOutput struct {
	l    *gpiocdev.Line
	name string
}

func (o lineOutput) Set(high bool) error {
	if o.l == nil {
		return nil
	}
	v := 0
	if high {
		v = 1
	}
	if err := o.l.SetValue(v); err != nil {
		return fmt.Errorf("set %s pin: %w", o.name, err)
	}
	return nil
}
