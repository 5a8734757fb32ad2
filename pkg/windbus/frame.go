// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import "fmt"

// Query is a read request for one register of one sensor
type Query [QueryFrameSize]byte

// Response is a sensor's answer to a Query
type Response [ResponseFrameSize]byte

// AddressChange is a request to move a sensor to a new bus address
type AddressChange [AddressChangeFrameSize]byte

// BuildQuery creates a read request for a single register at address.
// The register count is always one.
func BuildQuery(address byte, register uint16) Query {
	q := Query{address, FuncReadRegisters, byte(register >> 8), byte(register), 0x00, 0x01}
	AppendChecksum(q[:], QueryFrameSize-2)
	return q
}

// BuildWindSpeedQuery creates the wind speed read request for address
func BuildWindSpeedQuery(address byte) Query {
	return BuildQuery(address, RegisterWindSpeed)
}

// BuildWindDirectionQuery creates the wind direction read request for address
func BuildWindDirectionQuery(address byte) Query {
	return BuildQuery(address, RegisterWindDirection)
}

// BuildAddressChange creates the request that moves the sensor at oldAddress
// to newAddress. Use AddressBroadcast as oldAddress when the current address
// is unknown and only one sensor is connected.
func BuildAddressChange(oldAddress, newAddress byte) AddressChange {
	f := AddressChange{
		oldAddress, FuncWriteRegisters,
		byte(RegisterAddress >> 8), byte(RegisterAddress & 0xFF),
		0x00, 0x01, // register count
		0x02,             // byte count
		0x00, newAddress, // new address, big-endian
	}
	AppendChecksum(f[:], AddressChangeFrameSize-2)
	return f
}

// BuildResponse creates a sensor read response carrying value
func BuildResponse(address byte, value uint16) Response {
	r := Response{address, FuncReadRegisters, responsePayloadSize, byte(value >> 8), byte(value)}
	AppendChecksum(r[:], ResponseFrameSize-2)
	return r
}

// BuildAddressAck creates the acknowledgment a sensor sends after accepting
// an address change
func BuildAddressAck(oldAddress byte) [AddressAckFrameSize]byte {
	a := [AddressAckFrameSize]byte{
		oldAddress, FuncWriteRegisters,
		byte(RegisterAddress >> 8), byte(RegisterAddress & 0xFF),
		0x00, 0x01,
	}
	AppendChecksum(a[:], AddressAckFrameSize-2)
	return a
}

// Address returns the sensor address the query is sent to
func (q Query) Address() byte { return q[0] }

// Register returns the register the query reads
func (q Query) Register() uint16 { return uint16(q[2])<<8 | uint16(q[3]) }

// Valid reports whether the query carries a correct checksum
func (q Query) Valid() bool { return VerifyChecksum(q[:], QueryFrameSize-2) }

// Address returns the responding sensor address
func (r Response) Address() byte { return r[0] }

// Value returns the 16-bit big-endian payload
func (r Response) Value() uint16 { return uint16(r[3])<<8 | uint16(r[4]) }

// Valid reports whether the header and checksum are well formed
func (r Response) Valid() bool {
	return r[1] == FuncReadRegisters && r[2] == responsePayloadSize &&
		VerifyChecksum(r[:], ResponseFrameSize-2)
}

// Decode extracts the measured value for quantity. Wind direction is carried
// in the low payload byte only.
func (r Response) Decode(q Quantity) uint16 {
	if q == WindDirection {
		return uint16(r[4])
	}
	return r.Value()
}

// OldAddress returns the address the request is sent to
func (a AddressChange) OldAddress() byte { return a[0] }

// NewAddress returns the address the sensor is moved to
func (a AddressChange) NewAddress() byte { return a[8] }

// Valid reports whether the request carries a correct checksum
func (a AddressChange) Valid() bool {
	return VerifyChecksum(a[:], AddressChangeFrameSize-2)
}

// String formats the query as a hex dump
func (q Query) String() string { return hexBytes(q[:]) }

// String formats the response as a hex dump
func (r Response) String() string { return hexBytes(r[:]) }

// String formats the request as a hex dump
func (a AddressChange) String() string { return hexBytes(a[:]) }

func hexBytes(b []byte) string {
	s := ""
	for i, v := range b {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%02X", v)
	}
	return s
}
