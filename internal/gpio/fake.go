package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	mu sync.Mutex

	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Hold replaces the script with a single level returned from now on.
func (f *FakeInput) Hold(level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = []bool{level}
	f.index = 0
}

// Reset rewinds to the beginning of samples.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu sync.Mutex

	// Levels is the write history, oldest first.
	Levels []bool

	// SetError, if set, will be returned by Set() and nothing is recorded.
	SetError error
}

// Set records the level.
func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, high)
	return nil
}

// Level returns the last written level and whether anything was written.
func (f *FakeOutput) Level() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Levels) == 0 {
		return false, false
	}
	return f.Levels[len(f.Levels)-1], true
}

// Writes returns the number of recorded writes.
func (f *FakeOutput) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Levels)
}
