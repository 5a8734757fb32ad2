// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import "time"

// FrameKind identifies a frame recognized on the bus
type FrameKind int

// Frame kinds
const (
	FrameQuery FrameKind = iota
	FrameResponse
	FrameAddressChange
	FrameAddressAck
)

// Frame is a complete, checksum-valid frame seen on the bus
type Frame struct {
	Kind      FrameKind
	Bytes     []byte
	Timestamp time.Time
}

// Address returns the sensor address in the frame's first byte
func (f *Frame) Address() byte {
	return f.Bytes[0]
}

// Decoder recognizes frames in a raw bus capture. Both directions of a
// half-duplex bus show up on the same line, so queries and replies are
// interleaved in the stream. Frames are fixed size, so the decoder checks
// the most recent bytes against each frame shape after every byte.
type Decoder struct {
	window  []byte
	skipped int
}

// NewDecoder creates a new bus decoder
func NewDecoder() *Decoder {
	return &Decoder{
		window: make([]byte, 0, AddressChangeFrameSize),
	}
}

// Reset drops any buffered bytes
func (d *Decoder) Reset() {
	d.window = d.window[:0]
	d.skipped = 0
}

// Skipped returns the number of bytes that did not belong to any frame
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte processes a single byte
// Returns a completed frame, or nil if no frame ends at this byte
func (d *Decoder) DecodeByte(b byte) *Frame {
	if len(d.window) == cap(d.window) {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
		d.skipped++
	}
	d.window = append(d.window, b)

	// Longest shapes first so a frame is never mistaken for a shorter suffix
	for _, shape := range frameShapes {
		if len(d.window) < shape.size {
			continue
		}
		start := len(d.window) - shape.size
		candidate := d.window[start:]
		if !shape.match(candidate) {
			continue
		}
		frame := &Frame{
			Kind:      shape.kind,
			Bytes:     append([]byte(nil), candidate...),
			Timestamp: time.Now(),
		}
		d.skipped += start
		d.window = d.window[:0]
		return frame
	}
	return nil
}

type frameShape struct {
	kind  FrameKind
	size  int
	match func(b []byte) bool
}

var frameShapes = []frameShape{
	{FrameAddressChange, AddressChangeFrameSize, func(b []byte) bool {
		return b[1] == FuncWriteRegisters && b[2] == byte(RegisterAddress>>8) && b[3] == byte(RegisterAddress&0xFF) &&
			b[4] == 0x00 && b[5] == 0x01 && b[6] == 0x02 && VerifyChecksum(b, AddressChangeFrameSize-2)
	}},
	{FrameQuery, QueryFrameSize, func(b []byte) bool {
		return b[1] == FuncReadRegisters && b[4] == 0x00 && b[5] == 0x01 && VerifyChecksum(b, QueryFrameSize-2)
	}},
	{FrameAddressAck, AddressAckFrameSize, func(b []byte) bool {
		return b[1] == FuncWriteRegisters && b[2] == byte(RegisterAddress>>8) && b[3] == byte(RegisterAddress&0xFF) &&
			b[4] == 0x00 && b[5] == 0x01 && VerifyChecksum(b, AddressAckFrameSize-2)
	}},
	{FrameResponse, ResponseFrameSize, func(b []byte) bool {
		return b[1] == FuncReadRegisters && b[2] == responsePayloadSize && VerifyChecksum(b, ResponseFrameSize-2)
	}},
}
