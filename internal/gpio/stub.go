//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Board is not available on non-Linux platforms.
type Board struct{}

// NewBoard returns an error on non-Linux platforms.
func NewBoard(lines Lines, h Handlers) (*Board, error) {
	return nil, errUnsupported
}

// OpenLED returns an error on non-Linux platforms.
func OpenLED(chip string, offset int) (Output, func() error, error) {
	return nil, nil, errUnsupported
}

func (b *Board) Trigger() Input { return nil }
func (b *Board) Steam() Input   { return nil }
func (b *Board) Pump() Output   { return nil }
func (b *Board) Boiler() Output { return nil }
func (b *Board) Valve() Output  { return nil }
func (b *Board) LED() Output    { return nil }

// Close is a no-op on non-Linux platforms.
func (b *Board) Close() error {
	return nil
}
