// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"io"
	"sync"
	"time"
)

// StreamPort adapts a blocking byte stream (a WebSocket bridge, a TCP
// serial server) to the Port contract. A background goroutine pumps the
// stream into a buffer that Read drains with a timeout.
type StreamPort struct {
	rw io.ReadWriteCloser

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	err     error
	timeout time.Duration
}

// NewStreamPort starts pumping rw and returns the adapted port
func NewStreamPort(rw io.ReadWriteCloser) *StreamPort {
	s := &StreamPort{rw: rw, timeout: DefaultByteWindow}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *StreamPort) pump() {
	chunk := make([]byte, 256)
	for {
		n, err := s.rw.Read(chunk)
		s.mu.Lock()
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			s.err = err
		}
		s.cond.Broadcast()
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// SetReadTimeout sets how long Read waits for the first byte
func (s *StreamPort) SetReadTimeout(t time.Duration) error {
	s.mu.Lock()
	s.timeout = t
	s.mu.Unlock()
	return nil
}

// Read returns buffered bytes, waiting up to the read timeout for data.
// It returns (0, nil) on timeout and the stream error once the buffer is
// drained after the stream failed.
func (s *StreamPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 && s.err == nil {
		expired := false
		timer := time.AfterFunc(s.timeout, func() {
			s.mu.Lock()
			expired = true
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		for len(s.buf) == 0 && s.err == nil && !expired {
			s.cond.Wait()
		}
		timer.Stop()
	}

	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	return 0, nil
}

// Write passes p to the underlying stream
func (s *StreamPort) Write(p []byte) (int, error) {
	return s.rw.Write(p)
}

// Close closes the underlying stream, which also stops the pump
func (s *StreamPort) Close() error {
	return s.rw.Close()
}
