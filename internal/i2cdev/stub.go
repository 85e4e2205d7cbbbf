//go:build !linux

package i2cdev

import "errors"

// Bus is not available on non-Linux platforms.
type Bus struct{}

// Open returns an error on non-Linux platforms.
func Open(n int) (*Bus, error) {
	return nil, errors.New("i2cdev: not supported on this platform (requires Linux)")
}

// Tx is not implemented on non-Linux platforms.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return errors.New("i2cdev: not supported")
}

// Close is a no-op on non-Linux platforms.
func (b *Bus) Close() error {
	return nil
}
