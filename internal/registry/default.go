package registry

import (
	"errors"
	"sync"
)

var (
	// ErrNotInitialized is the panic value of Default before Init.
	ErrNotInitialized = errors.New("registry: not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("registry: already initialized")
)

var (
	defaultMu sync.Mutex
	defaultR  *Registry
)

// Init sets the process-wide registry. It may be called once.
func Init(shot ShotConfig, machine MachineConfig) (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultR != nil {
		return nil, ErrAlreadyInitialized
	}
	defaultR = New(shot, machine)
	return defaultR, nil
}

// Default returns the process-wide registry. Calling it before Init is a
// programming error and panics.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultR == nil {
		panic(ErrNotInitialized)
	}
	return defaultR
}
