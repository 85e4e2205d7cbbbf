// Package psm is a zero-crossing synchronised phase-skipping modulator.
//
// Each channel holds a duty in 0..Range. On every AC zero crossing the
// duty is added to an accumulator; when the accumulator reaches Range the
// channel fires for that half-cycle and Range is subtracted. A duty of 30
// therefore fires 30 of every 100 half-cycles, spread as evenly as the
// accumulator allows.
package psm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/espresso/internal/gpio"
)

// ErrUnknownChannel is returned for a channel that was never added.
var ErrUnknownChannel = errors.New("psm: unknown channel")

type channel struct {
	out   gpio.Output
	value uint8
	acc   int
	on    bool
	fired uint64
	err   error // last failed line write, cleared once the line follows
}

// Modulator drives one or more outputs from zero-crossing edges.
type Modulator struct {
	rng uint8

	mu       sync.Mutex
	channels map[int]*channel
	waiters  []chan struct{}
}

// New returns a Modulator accepting duties in 0..rng.
func New(rng uint8) *Modulator {
	return &Modulator{rng: rng, channels: make(map[int]*channel)}
}

// AddChannel attaches an output. The output is driven low.
func (m *Modulator) AddChannel(ch int, out gpio.Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[ch]; ok {
		return fmt.Errorf("psm: channel %d already added", ch)
	}
	if err := out.Set(false); err != nil {
		return fmt.Errorf("psm: init channel %d: %w", ch, err)
	}
	m.channels[ch] = &channel{out: out}
	return nil
}

// SetPower commits a duty for the next half-cycles. Values above the range
// are rejected. The duty is committed even when the channel's line failed
// its last write, but that failure is returned so the caller retries.
func (m *Modulator) SetPower(ch int, value uint8) error {
	if value > m.rng {
		return fmt.Errorf("psm: value %d exceeds range %d", value, m.rng)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownChannel, ch)
	}
	if value == 0 {
		c.acc = 0
	}
	c.value = value
	if c.err != nil {
		return fmt.Errorf("psm: channel %d output: %w", ch, c.err)
	}
	return nil
}

// Err returns the channel's last line write failure, or nil once the line
// is following the duty again.
func (m *Modulator) Err(ch int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownChannel, ch)
	}
	return c.err
}

// Power returns the committed duty of a channel.
func (m *Modulator) Power(ch int) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.channels[ch]
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrUnknownChannel, ch)
	}
	return c.value, nil
}

// Fired returns how many half-cycles the channel's line was actually high.
func (m *Modulator) Fired(ch int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.channels[ch]; ok {
		return c.fired
	}
	return 0
}

// OnZeroCross advances every channel by one half-cycle. It is called from
// the zero-crossing edge handler and releases WaitZeroCrossing callers.
// Output writes are only issued when a line changes level.
func (m *Modulator) OnZeroCross() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, c := range m.channels {
		fire := false
		if c.value > 0 {
			c.acc += int(c.value)
			if c.acc >= int(m.rng) {
				c.acc -= int(m.rng)
				fire = true
			}
		}
		if fire != c.on {
			if err := c.out.Set(fire); err != nil {
				c.err = err
				errs = append(errs, fmt.Errorf("channel %d: %w", id, err))
				continue
			}
			c.on = fire
		}
		c.err = nil
		if fire {
			c.fired++
		}
	}

	for _, w := range m.waiters {
		close(w)
	}
	m.waiters = m.waiters[:0]

	return errors.Join(errs...)
}

// WaitZeroCrossing blocks until the next edge or until ctx is done.
func (m *Modulator) WaitZeroCrossing(ctx context.Context) error {
	w := make(chan struct{})
	m.mu.Lock()
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, x := range m.waiters {
			if x == w {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

// Off drives every channel low and clears its duty.
func (m *Modulator) Off() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, c := range m.channels {
		c.value = 0
		c.acc = 0
		if err := c.out.Set(false); err != nil {
			c.err = err
			errs = append(errs, fmt.Errorf("channel %d: %w", id, err))
			continue
		}
		c.on = false
		c.err = nil
	}
	return errors.Join(errs...)
}
