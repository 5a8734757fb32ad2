// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// rawCRC computes CRC-16/MODBUS over data in the order the algorithm
// produces it (low byte is the first byte on the wire).
func rawCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Checksum returns the CRC-16/MODBUS of data with its two bytes swapped.
// The swapped form equals the trailer read as a big-endian number, which is
// how VerifyChecksum compares it.
func Checksum(data []byte) uint16 {
	crc := rawCRC(data)
	return crc<<8 | crc>>8
}

// AppendChecksum computes the CRC over frame[:n] and stores it at frame[n]
// (low byte) and frame[n+1] (high byte). The unswapped CRC is written.
func AppendChecksum(frame []byte, n int) {
	crc := rawCRC(frame[:n])
	frame[n] = byte(crc & 0xFF)
	frame[n+1] = byte(crc >> 8)
}

// VerifyChecksum reports whether the trailer at frame[n:n+2], read as
// frame[n]*256+frame[n+1], equals Checksum(frame[:n]).
func VerifyChecksum(frame []byte, n int) bool {
	if n < 0 || len(frame) < n+2 {
		return false
	}
	received := uint16(frame[n])<<8 | uint16(frame[n+1])
	return Checksum(frame[:n]) == received
}
