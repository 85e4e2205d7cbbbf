package psm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/espresso/internal/gpio"
	"github.com/sweeney/espresso/internal/pump"
)

func newPump(t *testing.T) (*Modulator, *gpio.FakeOutput) {
	t.Helper()
	m := New(100)
	out := &gpio.FakeOutput{}
	require.NoError(t, m.AddChannel(0, out))
	return m, out
}

func TestDutyFiresProportionally(t *testing.T) {
	for _, duty := range []uint8{0, 1, 12, 30, 50, 85, 99, 100} {
		m, _ := newPump(t)
		require.NoError(t, m.SetPower(0, duty))
		for i := 0; i < 100; i++ {
			require.NoError(t, m.OnZeroCross())
		}
		assert.Equal(t, uint64(duty), m.Fired(0), "duty %d", duty)
	}
}

func TestHalfDutyAlternates(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 50))
	for i := 0; i < 6; i++ {
		require.NoError(t, m.OnZeroCross())
	}
	// initial low, then low/high alternating with writes on change only
	assert.Equal(t, []bool{false, true, false, true, false, true}, out.Levels[:6])
}

func TestFullOnWritesOnce(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 100))
	for i := 0; i < 10; i++ {
		require.NoError(t, m.OnZeroCross())
	}
	assert.Equal(t, []bool{false, true}, out.Levels)
}

func TestSetPowerValidation(t *testing.T) {
	m, _ := newPump(t)

	assert.Error(t, m.SetPower(0, 101))
	err := m.SetPower(3, 10)
	assert.True(t, errors.Is(err, ErrUnknownChannel))

	require.NoError(t, m.SetPower(0, 42))
	v, err := m.Power(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(42), v)

	assert.Error(t, m.AddChannel(0, &gpio.FakeOutput{}), "duplicate channel")
}

func TestZeroDutyStopsFiring(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 99))
	require.NoError(t, m.OnZeroCross())
	require.NoError(t, m.SetPower(0, 0))
	for i := 0; i < 5; i++ {
		require.NoError(t, m.OnZeroCross())
	}
	level, _ := out.Level()
	assert.False(t, level)
}

func TestOutputErrorReported(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 100))
	out.SetError = errors.New("line gone")
	assert.Error(t, m.OnZeroCross())

	out.SetError = nil
	require.NoError(t, m.OnZeroCross())
	level, _ := out.Level()
	assert.True(t, level, "recovered on next edge")
}

func TestFailedWritesAreNotFired(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 100))
	out.SetError = errors.New("line gone")
	for i := 0; i < 100; i++ {
		assert.Error(t, m.OnZeroCross())
	}

	assert.Equal(t, uint64(0), m.Fired(0))
	assert.Error(t, m.Err(0))
	assert.Equal(t, []bool{false}, out.Levels, "only the initial low was written")

	out.SetError = nil
	require.NoError(t, m.OnZeroCross())
	assert.NoError(t, m.Err(0))
	assert.Equal(t, uint64(1), m.Fired(0))
}

func TestSetPowerReportsLineFailure(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 100))
	out.SetError = errors.New("line gone")
	require.Error(t, m.OnZeroCross())

	err := m.SetPower(0, 70)
	require.Error(t, err)
	v, _ := m.Power(0)
	assert.Equal(t, uint8(70), v, "duty still committed")

	assert.ErrorIs(t, m.Err(7), ErrUnknownChannel)

	out.SetError = nil
	require.NoError(t, m.OnZeroCross())
	assert.NoError(t, m.SetPower(0, 70))
}

func TestActuatorRetriesAfterLineFailure(t *testing.T) {
	m, out := newPump(t)
	a := pump.NewActuator(m, 0)

	_, err := a.SetPressure(9, 0, pump.State{Pressure: 3})
	require.NoError(t, err)

	out.SetError = errors.New("line gone")
	for i := 0; i < 100; i++ {
		_ = m.OnZeroCross()
	}

	raw, err := a.SetPressure(9, 0, pump.State{Pressure: 3})
	assert.Equal(t, uint8(100), raw)
	require.Error(t, err)
	_, delivered := a.Last()
	assert.False(t, delivered)

	retried, err := a.Retry()
	assert.True(t, retried)
	assert.Error(t, err, "line still failing")

	out.SetError = nil
	require.NoError(t, m.OnZeroCross())
	retried, err = a.Retry()
	assert.True(t, retried)
	assert.NoError(t, err)
	_, delivered = a.Last()
	assert.True(t, delivered)

	retried, _ = a.Retry()
	assert.False(t, retried, "nothing left to retry")
}

func TestOff(t *testing.T) {
	m, out := newPump(t)
	require.NoError(t, m.SetPower(0, 100))
	require.NoError(t, m.OnZeroCross())
	require.NoError(t, m.Off())

	v, _ := m.Power(0)
	assert.Equal(t, uint8(0), v)
	level, _ := out.Level()
	assert.False(t, level)
}

func TestWaitZeroCrossing(t *testing.T) {
	m, _ := newPump(t)

	done := make(chan error, 1)
	go func() { done <- m.WaitZeroCrossing(context.Background()) }()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.waiters) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, m.OnZeroCross())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestWaitZeroCrossingCancelled(t *testing.T) {
	m, _ := newPump(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.WaitZeroCrossing(ctx), context.Canceled)
}

func TestCancelledWaitersAreRemoved(t *testing.T) {
	m, _ := newPump(t)
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, m.WaitZeroCrossing(ctx), context.Canceled)
	}

	m.mu.Lock()
	n := len(m.waiters)
	m.mu.Unlock()
	assert.Zero(t, n)
}
