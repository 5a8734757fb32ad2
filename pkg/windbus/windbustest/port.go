// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package windbustest provides an in-memory sensor bus for tests.
package windbustest

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by a closed Port
var ErrClosed = errors.New("windbustest: port closed")

// Responder produces the bytes a bus answers with after the host writes
type Responder interface {
	Respond(written []byte) []byte
}

// ResponderFunc adapts a function to Responder
type ResponderFunc func(written []byte) []byte

// Respond calls f
func (f ResponderFunc) Respond(written []byte) []byte {
	return f(written)
}

// Script answers the n-th write with replies[n]. Writes beyond the script,
// and nil entries, get no answer.
func Script(replies ...[]byte) Responder {
	var mu sync.Mutex
	n := 0
	return ResponderFunc(func(written []byte) []byte {
		mu.Lock()
		defer mu.Unlock()
		i := n
		n++
		if i < len(replies) {
			return replies[i]
		}
		return nil
	})
}

// Port implements windbus.Port in memory. Every write is logged and passed
// to the responder; the reply becomes readable immediately.
type Port struct {
	mu        sync.Mutex
	cond      *sync.Cond
	rx        []byte
	writes    [][]byte
	writeTime []time.Time
	timeout   time.Duration
	responder Responder
	closed    bool
}

// New creates a port answering through r. A nil responder never answers.
func New(r Responder) *Port {
	p := &Port{responder: r, timeout: 100 * time.Millisecond}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Inject makes b readable as if the bus had sent it
func (p *Port) Inject(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, b...)
	p.cond.Broadcast()
}

// InjectAfter makes b readable after d
func (p *Port) InjectAfter(d time.Duration, b []byte) {
	time.AfterFunc(d, func() { p.Inject(b) })
}

// Writes returns a copy of every write made so far
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	for i, w := range p.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// WriteTimes returns when each write was made
func (p *Port) WriteTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.writeTime...)
}

// WriteCount returns the number of writes made so far
func (p *Port) WriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// Pending returns the number of unread bytes
func (p *Port) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

// Write logs b and queues the responder's answer
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	p.writeTime = append(p.writeTime, time.Now())
	r := p.responder
	p.mu.Unlock()

	if r != nil {
		if reply := r.Respond(b); len(reply) > 0 {
			p.Inject(reply)
		}
	}
	return len(b), nil
}

// SetReadTimeout sets how long Read waits for data
func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

// Read returns available bytes, waiting up to the read timeout.
// It returns (0, nil) when nothing arrived in time.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.rx) == 0 && !p.closed {
		expired := false
		timer := time.AfterFunc(p.timeout, func() {
			p.mu.Lock()
			expired = true
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		for len(p.rx) == 0 && !p.closed && !expired {
			p.cond.Wait()
		}
		timer.Stop()
	}

	if len(p.rx) > 0 {
		n := copy(b, p.rx)
		p.rx = p.rx[n:]
		return n, nil
	}
	if p.closed {
		return 0, ErrClosed
	}
	return 0, nil
}

// Close fails all further reads and writes
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}
