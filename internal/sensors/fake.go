package sensors

import "sync"

// series steps through scripted values, repeating the last one. Errors are
// keyed by read index.
type series[T any] struct {
	mu     sync.Mutex
	values []T
	errs   map[int]error
	reads  int
}

func (s *series[T]) next() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.reads
	s.reads++

	var zero T
	if err, ok := s.errs[i]; ok {
		return zero, err
	}
	if len(s.values) == 0 {
		return zero, nil
	}
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	return s.values[i], nil
}

func (s *series[T]) failAt(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[int]error)
	}
	s.errs[i] = err
}

func (s *series[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// FakeADC returns scripted raw readings.
type FakeADC struct{ s series[uint16] }

// NewFakeADC creates a FakeADC with the given readings.
func NewFakeADC(raw ...uint16) *FakeADC {
	return &FakeADC{s: series[uint16]{values: raw}}
}

func (f *FakeADC) ReadRaw() (uint16, error) { return f.s.next() }

// FailAt makes the i-th read (0-based) return err.
func (f *FakeADC) FailAt(i int, err error) { f.s.failAt(i, err) }

// FakePressure returns a scripted pressure series in bar.
type FakePressure struct{ s series[float32] }

// NewFakePressure creates a FakePressure with the given readings.
func NewFakePressure(bar ...float32) *FakePressure {
	return &FakePressure{s: series[float32]{values: bar}}
}

func (f *FakePressure) ReadPressure() (float32, error) { return f.s.next() }

// FailAt makes the i-th read (0-based) return err.
func (f *FakePressure) FailAt(i int, err error) { f.s.failAt(i, err) }

// Reads returns the number of reads so far.
func (f *FakePressure) Reads() int { return f.s.count() }

// FakeTemperature is both a single probe and a complete thermometer.
type FakeTemperature struct{ s series[float32] }

// NewFakeTemperature creates a FakeTemperature with the given readings.
func NewFakeTemperature(celsius ...float32) *FakeTemperature {
	return &FakeTemperature{s: series[float32]{values: celsius}}
}

func (f *FakeTemperature) ReadCelsius() (float32, error)     { return f.s.next() }
func (f *FakeTemperature) ReadTemperature() (float32, error) { return f.s.next() }

// FailAt makes the i-th read (0-based) return err.
func (f *FakeTemperature) FailAt(i int, err error) { f.s.failAt(i, err) }

// FakeFlow returns scripted meter readings.
type FakeFlow struct{ s series[Flow] }

// NewFakeFlow creates a FakeFlow with the given readings.
func NewFakeFlow(readings ...Flow) *FakeFlow {
	return &FakeFlow{s: series[Flow]{values: readings}}
}

func (f *FakeFlow) ReadFlow() (Flow, error) { return f.s.next() }

// FailAt makes the i-th read (0-based) return err.
func (f *FakeFlow) FailAt(i int, err error) { f.s.failAt(i, err) }
