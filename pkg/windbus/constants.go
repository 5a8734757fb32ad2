// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package windbus implements the query/response protocol spoken by RS-485
// wind speed and wind direction sensors.
//
// Every sensor sits on a shared half-duplex bus under an 8-bit address. The
// host sends a fixed-size query frame, the addressed sensor answers with a
// fixed-size response frame, and both frames carry a CRC-16 trailer. This
// package provides framing, checksum handling, a byte-timeout read primitive
// and the transaction state machines for reading a value and reassigning a
// sensor address.
package windbus

import "time"

// Function codes
const (
	FuncReadRegisters  = 0x03
	FuncWriteRegisters = 0x10
)

// Registers
const (
	RegisterWindSpeed     = 0x0000
	RegisterWindDirection = 0x0001
	RegisterAddress       = 0x1000
)

// Frame sizes
const (
	QueryFrameSize         = 8
	ResponseFrameSize      = 7
	AddressChangeFrameSize = 11
	AddressAckFrameSize    = 8

	// Bytes of the acknowledgment that are matched. The trailer after them
	// is read and dropped unchecked.
	addressAckMatchSize = 6

	// Payload length announced by a read response
	responsePayloadSize = 0x02
)

// AddressBroadcast reaches any device on the bus. Only valid for address change.
const AddressBroadcast = 0x00

// Default timing
const (
	DefaultByteWindow     = 100 * time.Millisecond
	DefaultResendInterval = 100 * time.Millisecond
	DefaultDeadline       = 1000 * time.Millisecond
)

// Out-of-band values returned by the compatibility readers when no reading
// was obtained before the deadline.
const (
	SentinelWindSpeed     int16 = -5
	SentinelWindDirection int16 = 18
)

// CRC-16/MODBUS configuration
const (
	crcPolynomial = 0xA001
	crcInitial    = 0xFFFF
)

// Quantity identifies what a read transaction measures
type Quantity int

// Quantity values
const (
	WindSpeed Quantity = iota
	WindDirection
)

// String returns the quantity name used in logs and metrics labels
func (q Quantity) String() string {
	switch q {
	case WindSpeed:
		return "wind_speed"
	case WindDirection:
		return "wind_direction"
	default:
		return "unknown"
	}
}

// Register returns the sensor register holding the quantity
func (q Quantity) Register() uint16 {
	if q == WindDirection {
		return RegisterWindDirection
	}
	return RegisterWindSpeed
}

// Sentinel returns the compatibility "no reading" value for the quantity
func (q Quantity) Sentinel() int16 {
	if q == WindDirection {
		return SentinelWindDirection
	}
	return SentinelWindSpeed
}
