// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"time"
)

// Port is the byte stream a sensor bus is attached to.
//
// Read waits at most the duration last passed to SetReadTimeout and returns
// (0, nil) when nothing arrived in time. go.bug.st/serial ports satisfy it
// directly; other transports can be adapted with NewStreamPort.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
}

// ReadN reads up to len(dest) bytes from p, giving up once window has
// elapsed since the call started. It returns the number of bytes collected;
// a short count is not an error. Errors are only returned for transport
// faults.
func ReadN(p Port, dest []byte, window time.Duration) (int, error) {
	start := time.Now()
	offset := 0
	for offset < len(dest) {
		remaining := window - time.Since(start)
		if remaining <= 0 {
			break
		}
		if err := p.SetReadTimeout(remaining); err != nil {
			return offset, err
		}
		n, err := p.Read(dest[offset:])
		offset += n
		if err != nil {
			return offset, err
		}
	}
	return offset, nil
}
