package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"
)

// ADS1015 registers and configuration bits.
const (
	ADS1015Address = 0x48

	regConversion = 0x00
	regConfig     = 0x01

	cfgStart      = 1 << 15
	cfgMuxSingle  = 4 << 12 // AINx against GND, channel added on top
	cfgGain4V096  = 1 << 9
	cfgSingleShot = 1 << 8
	cfgRate1600   = 4 << 5
	cfgNoCompare  = 3

	ads1015FullScale = 4.096 // volts at code 2047
	frontEndVolts    = 3.3
)

// ADS1015 is a 12-bit I2C ADC used in single-shot mode.
type ADS1015 struct {
	bus     drivers.I2C
	addr    uint16
	channel uint8

	// Poll is the wait between conversion-ready polls.
	Poll time.Duration
	// Attempts bounds the number of polls.
	Attempts int

	sleep func(time.Duration)
}

// NewADS1015 returns a driver reading a single-ended channel (0..3).
func NewADS1015(bus drivers.I2C, addr uint16, channel uint8) (*ADS1015, error) {
	if channel > 3 {
		return nil, fmt.Errorf("ads1015: channel %d out of range", channel)
	}
	if addr == 0 {
		addr = ADS1015Address
	}
	return &ADS1015{
		bus:      bus,
		addr:     addr,
		channel:  channel,
		Poll:     time.Millisecond,
		Attempts: 10,
		sleep:    time.Sleep,
	}, nil
}

func (a *ADS1015) config() uint16 {
	return cfgStart | cfgMuxSingle | uint16(a.channel)<<12 | cfgGain4V096 | cfgSingleShot | cfgRate1600 | cfgNoCompare
}

// ReadRaw starts a conversion, waits for it and returns the reading scaled
// to the 0..4095 range of the 3.3 V front-end. Readings above the front-end
// range are returned as-is for the caller to reject.
func (a *ADS1015) ReadRaw() (uint16, error) {
	cfg := make([]byte, 3)
	cfg[0] = regConfig
	binary.BigEndian.PutUint16(cfg[1:], a.config())
	if err := a.bus.Tx(a.addr, cfg, nil); err != nil {
		return 0, fmt.Errorf("ads1015: start conversion: %w", err)
	}

	buf := make([]byte, 2)
	ready := false
	for i := 0; i < a.Attempts; i++ {
		a.sleep(a.Poll)
		if err := a.bus.Tx(a.addr, []byte{regConfig}, buf); err != nil {
			return 0, fmt.Errorf("ads1015: poll: %w", err)
		}
		if binary.BigEndian.Uint16(buf)&cfgStart != 0 {
			ready = true
			break
		}
	}
	if !ready {
		return 0, errors.New("ads1015: conversion timeout")
	}

	if err := a.bus.Tx(a.addr, []byte{regConversion}, buf); err != nil {
		return 0, fmt.Errorf("ads1015: read conversion: %w", err)
	}
	code := int16(binary.BigEndian.Uint16(buf)) >> 4
	return scaleCode(code), nil
}

func scaleCode(code int16) uint16 {
	if code <= 0 {
		return 0
	}
	volts := float32(code) * ads1015FullScale / 2047
	return uint16(volts/frontEndVolts*ADCMax + 0.5)
}
