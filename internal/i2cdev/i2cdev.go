//go:build linux

// Package i2cdev is an I2C bus over the Linux i2c-dev interface.
package i2cdev

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the ioctl selecting the target address for read and write.
const i2cSlave = 0x0703

// Bus is an open /dev/i2c-N adapter. It implements drivers.I2C.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
	set  bool
}

// Open opens the adapter with the given number.
func Open(n int) (*Bus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", n)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Bus{f: f}, nil
}

// Tx writes w then reads len(r) bytes from the device at addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set || b.addr != addr {
		if err := unix.IoctlSetInt(int(b.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c select 0x%02x: %w", addr, err)
		}
		b.addr, b.set = addr, true
	}
	if len(w) > 0 {
		if _, err := b.f.Write(w); err != nil {
			return fmt.Errorf("i2c write 0x%02x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := b.f.Read(r); err != nil {
			return fmt.Errorf("i2c read 0x%02x: %w", addr, err)
		}
	}
	return nil
}

// Close releases the adapter.
func (b *Bus) Close() error {
	return b.f.Close()
}
