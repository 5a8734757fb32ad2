// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"errors"
	"testing"

	"github.com/Thermoquad/anemostat/pkg/windbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	address byte
	data    []byte
}

type recordingBus struct {
	writes []write
	err    error
}

func (b *recordingBus) Write(address byte, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.writes = append(b.writes, write{address, append([]byte(nil), data...)})
	return nil
}

func newTestDisplay(t *testing.T, address byte) (*Display, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	d, err := New(bus, address)
	require.NoError(t, err)
	return d, bus
}

func TestNew_InvalidAddress(t *testing.T) {
	for _, a := range []byte{0x00, 0x07, 0x78, 0xFF} {
		_, err := New(&recordingBus{}, a)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address 0x%02X", a)
	}
}

func TestDisplay_Clear(t *testing.T) {
	d, bus := newTestDisplay(t, 0x71)
	require.NoError(t, d.Clear())
	assert.Equal(t, []write{{0x71, []byte{0x76}}}, bus.writes)
}

func TestDisplay_SetBrightness(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		want    byte
	}{
		{"mid", 50, 50},
		{"max", 100, 100},
		{"above max", 250, 100},
		{"negative", -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bus := newTestDisplay(t, 0x71)
			require.NoError(t, d.SetBrightness(tt.percent))
			assert.Equal(t, []write{{0x71, []byte{0x7A, tt.want}}}, bus.writes)
		})
	}
}

func TestDisplay_Transmit(t *testing.T) {
	d, bus := newTestDisplay(t, 0x72)
	require.NoError(t, d.Transmit("12", DecimalDigit2))

	assert.Equal(t, []write{
		{0x72, []byte("  12")},
		{0x72, []byte{0x77, 0x02}},
	}, bus.writes)
}

func TestDisplay_TransmitTruncates(t *testing.T) {
	d, bus := newTestDisplay(t, 0x72)
	require.NoError(t, d.Transmit("123456", 0))
	assert.Equal(t, []byte("3456"), bus.writes[0].data)
}

func TestDisplay_ChangeAddress(t *testing.T) {
	d, bus := newTestDisplay(t, 0x71)
	require.NoError(t, d.ChangeAddress(0x30))

	assert.Equal(t, []write{
		{0x71, []byte{'v'}},
		{0x71, []byte{0x80, 0x30}},
		{0x30, []byte{'v'}},
	}, bus.writes)
	assert.Equal(t, byte(0x30), d.Address())
}

func TestDisplay_ChangeAddressInvalid(t *testing.T) {
	d, bus := newTestDisplay(t, 0x71)
	assert.ErrorIs(t, d.ChangeAddress(0x02), ErrInvalidAddress)
	assert.Empty(t, bus.writes)
	assert.Equal(t, byte(0x71), d.Address())
}

func TestDisplay_BusError(t *testing.T) {
	busErr := errors.New("nack")
	d, err := New(&recordingBus{err: busErr}, 0x71)
	require.NoError(t, err)

	err = d.ShowSpeed(12)
	assert.ErrorIs(t, err, busErr)
	assert.Contains(t, err.Error(), "display 0x71")
}

func TestDisplay_ShowSpeedAndDirection(t *testing.T) {
	d, bus := newTestDisplay(t, 0x71)
	require.NoError(t, d.ShowSpeed(305))
	require.NoError(t, d.ShowDirection(windbus.SentinelWindDirection))

	assert.Equal(t, []write{
		{0x71, []byte(" 305")},
		{0x71, []byte{0x77, DecimalDigit3}},
		{0x71, []byte("----")},
		{0x71, []byte{0x77, 0x00}},
	}, bus.writes)
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		raw  int16
		text string
		mask byte
	}{
		{300, " 300", DecimalDigit3},
		{5, "  05", DecimalDigit3},
		{0, "  00", DecimalDigit3},
		{1234, "1234", DecimalDigit3},
		{12000, "9999", DecimalDigit3},
		{windbus.SentinelWindSpeed, Placeholder, 0},
		{-1, Placeholder, 0},
	}

	for _, tt := range tests {
		text, mask := FormatSpeed(tt.raw)
		assert.Equal(t, tt.text, text, "raw %d", tt.raw)
		assert.Equal(t, tt.mask, mask, "raw %d", tt.raw)
	}
}

func TestFormatDirection(t *testing.T) {
	tests := []struct {
		sector int16
		text   string
	}{
		{0, "   N"},
		{1, " NNE"},
		{10, "  SW"},
		{15, " NNW"},
		{16, Placeholder},
		{windbus.SentinelWindDirection, Placeholder},
		{-1, Placeholder},
	}

	for _, tt := range tests {
		text, mask := FormatDirection(tt.sector)
		assert.Equal(t, tt.text, text, "sector %d", tt.sector)
		assert.Equal(t, byte(0), mask)
	}
}
