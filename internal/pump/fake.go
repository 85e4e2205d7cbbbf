package pump

// FakeDriver records raw values written per channel.
type FakeDriver struct {
	// Writes contains every value passed to SetPower, in order.
	Writes []uint8

	// SetError, if set, is returned by SetPower and the write is not recorded.
	SetError error
}

// SetPower records the value.
func (f *FakeDriver) SetPower(channel int, value uint8) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, value)
	return nil
}

// Last returns the last recorded value, or 0 if none.
func (f *FakeDriver) Last() uint8 {
	if len(f.Writes) == 0 {
		return 0
	}
	return f.Writes[len(f.Writes)-1]
}
