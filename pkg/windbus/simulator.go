// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Simulator behaves like a single sensor on the bus. It answers read
// queries addressed to it and accepts address changes, which take effect
// after PowerCycle, as on the real hardware.
type Simulator struct {
	mu        sync.Mutex
	address   byte
	pending   *byte
	registers map[uint16]uint16
	decoder   *Decoder
}

// NewSimulator creates a sensor answering at address
func NewSimulator(address byte) *Simulator {
	return &Simulator{
		address:   address,
		registers: map[uint16]uint16{},
		decoder:   NewDecoder(),
	}
}

// Address returns the address the sensor currently answers on
func (s *Simulator) Address() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// SetRegister sets the value returned for reads of reg. Registers that
// were never set read as 0.
func (s *Simulator) SetRegister(reg uint16, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[reg] = value
}

// SetWindSpeed sets the raw wind speed the sensor reports
func (s *Simulator) SetWindSpeed(raw uint16) {
	s.SetRegister(RegisterWindSpeed, raw)
}

// SetWindDirection sets the direction sector the sensor reports
func (s *Simulator) SetWindDirection(sector uint16) {
	s.SetRegister(RegisterWindDirection, sector)
}

// PowerCycle applies an accepted address change
func (s *Simulator) PowerCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.address = *s.pending
		s.pending = nil
	}
	s.decoder.Reset()
}

// Respond consumes bytes written by the host and returns the sensor's
// replies to any requests completed by them
func (s *Simulator) Respond(written []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []byte
	for _, b := range written {
		f := s.decoder.DecodeByte(b)
		if f == nil {
			continue
		}
		out = append(out, s.handle(f)...)
	}
	return out
}

func (s *Simulator) handle(f *Frame) []byte {
	switch f.Kind {
	case FrameQuery:
		if f.Address() != s.address {
			return nil
		}
		reg := uint16(f.Bytes[2])<<8 | uint16(f.Bytes[3])
		r := BuildResponse(s.address, s.registers[reg])
		return r[:]

	case FrameAddressChange:
		if f.Address() != s.address && f.Address() != AddressBroadcast {
			return nil
		}
		next := f.Bytes[8]
		s.pending = &next
		ack := BuildAddressAck(f.Address())
		return ack[:]
	}
	return nil
}

// Serve answers requests arriving on port until ctx is done or the port fails
func (s *Simulator) Serve(ctx context.Context, port Port) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := ReadN(port, buf, 10*time.Millisecond)
		if err != nil {
			return fmt.Errorf("simulator: read: %w", err)
		}
		if n == 0 {
			continue
		}
		if reply := s.Respond(buf[:n]); len(reply) > 0 {
			if _, err := port.Write(reply); err != nil {
				return fmt.Errorf("simulator: write: %w", err)
			}
		}
	}
}
