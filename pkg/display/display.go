// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package display drives serial seven-segment displays over I2C.
//
// Each display is a four digit module with its own bus address. Text is
// sent as four characters followed by a decimal point mask.
package display

import (
	"errors"
	"fmt"
)

// Display commands
const (
	CmdClear         = 0x76
	CmdDecimals      = 0x77
	CmdBrightness    = 0x7A
	CmdAddressChange = 0x80
	CmdReset         = 'v'
)

// Decimal point mask bits, counted from the leftmost digit
const (
	DecimalDigit1 = 1 << iota
	DecimalDigit2
	DecimalDigit3
	DecimalDigit4
	DecimalColon
	DecimalApostrophe
)

// Digits is the number of characters a display shows
const Digits = 4

// MaxBrightness is the brightest level a display accepts
const MaxBrightness = 100

// ErrInvalidAddress is returned for an address outside the 7-bit I2C range
var ErrInvalidAddress = errors.New("display: invalid I2C address")

// Bus writes raw bytes to the device at a 7-bit I2C address
type Bus interface {
	Write(address byte, data []byte) error
}

// Display is one seven-segment module on a Bus
type Display struct {
	bus     Bus
	address byte
}

// New returns the display answering at address on bus
func New(bus Bus, address byte) (*Display, error) {
	if !validAddress(address) {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, address)
	}
	return &Display{bus: bus, address: address}, nil
}

// Address returns the address the display is currently driven on
func (d *Display) Address() byte {
	return d.address
}

// Clear blanks the display and returns the cursor to the first digit
func (d *Display) Clear() error {
	return d.write(CmdClear)
}

// SetDecimals sets the decimal point, colon and apostrophe segments
func (d *Display) SetDecimals(mask byte) error {
	return d.write(CmdDecimals, mask)
}

// SetBrightness sets the brightness in percent. Values above MaxBrightness
// are clamped.
func (d *Display) SetBrightness(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > MaxBrightness {
		percent = MaxBrightness
	}
	return d.write(CmdBrightness, byte(percent))
}

// Transmit shows text, padded or cut to four characters, then applies the
// decimal mask
func (d *Display) Transmit(text string, decimals byte) error {
	if err := d.write(fit(text)...); err != nil {
		return err
	}
	return d.SetDecimals(decimals)
}

// ChangeAddress moves the display to newAddress. The display is reset on
// its old address, told the new one, then reset again on the new address.
// Later calls use the new address.
func (d *Display) ChangeAddress(newAddress byte) error {
	if !validAddress(newAddress) {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidAddress, newAddress)
	}
	if err := d.write(CmdReset); err != nil {
		return err
	}
	if err := d.write(CmdAddressChange, newAddress); err != nil {
		return err
	}
	d.address = newAddress
	return d.write(CmdReset)
}

// ShowSpeed renders a raw wind speed
func (d *Display) ShowSpeed(raw int16) error {
	text, mask := FormatSpeed(raw)
	return d.Transmit(text, mask)
}

// ShowDirection renders a wind direction sector
func (d *Display) ShowDirection(sector int16) error {
	text, mask := FormatDirection(sector)
	return d.Transmit(text, mask)
}

func (d *Display) write(data ...byte) error {
	if err := d.bus.Write(d.address, data); err != nil {
		return fmt.Errorf("display 0x%02X: %w", d.address, err)
	}
	return nil
}

func validAddress(a byte) bool {
	return a >= 0x08 && a <= 0x77
}

// fit pads text on the left, or keeps its last four characters
func fit(text string) []byte {
	b := []byte(text)
	if len(b) >= Digits {
		return b[len(b)-Digits:]
	}
	out := make([]byte, Digits)
	pad := Digits - len(b)
	for i := 0; i < pad; i++ {
		out[i] = ' '
	}
	copy(out[pad:], b)
	return out
}
