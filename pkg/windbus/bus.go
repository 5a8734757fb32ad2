// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Timing holds the three time bounds of a transaction
type Timing struct {
	// ByteWindow bounds each timed read
	ByteWindow time.Duration
	// ResendInterval is how long to wait for a reply before rewriting the request
	ResendInterval time.Duration
	// Deadline is the total time budget of a transaction
	Deadline time.Duration
}

// DefaultTiming returns the timing the sensors are specified for
func DefaultTiming() Timing {
	return Timing{
		ByteWindow:     DefaultByteWindow,
		ResendInterval: DefaultResendInterval,
		Deadline:       DefaultDeadline,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.ByteWindow <= 0 {
		t.ByteWindow = d.ByteWindow
	}
	if t.ResendInterval <= 0 {
		t.ResendInterval = d.ResendInterval
	}
	if t.Deadline <= 0 {
		t.Deadline = d.Deadline
	}
	return t
}

// PowerCyclePrompter is told when a sensor accepted a new address. The new
// address only takes effect after the sensor is powered off and on again.
type PowerCyclePrompter interface {
	PromptPowerCycle(oldAddress, newAddress byte)
}

// PowerCyclePrompterFunc adapts a function to PowerCyclePrompter
type PowerCyclePrompterFunc func(oldAddress, newAddress byte)

// PromptPowerCycle calls f
func (f PowerCyclePrompterFunc) PromptPowerCycle(oldAddress, newAddress byte) {
	f(oldAddress, newAddress)
}

// Bus runs transactions against sensors on one port. Transactions are
// serialized; only one is ever in flight on the half-duplex line.
type Bus struct {
	port     Port
	timing   Timing
	logger   *zap.Logger
	observer Observer
	prompter PowerCyclePrompter

	mu sync.Mutex
}

// Option configures a Bus
type Option func(*Bus)

// WithTiming overrides the transaction timing. Zero fields keep their defaults.
func WithTiming(t Timing) Option {
	return func(b *Bus) { b.timing = t.withDefaults() }
}

// WithLogger sets the logger used for transaction diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithObserver registers an observer for transaction reports
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// WithPowerCyclePrompter sets who is told to power cycle a re-addressed sensor
func WithPowerCyclePrompter(p PowerCyclePrompter) Option {
	return func(b *Bus) { b.prompter = p }
}

// NewBus creates a bus over port
func NewBus(port Port, opts ...Option) *Bus {
	b := &Bus{
		port:   port,
		timing: DefaultTiming(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Timing returns the transaction timing in use
func (b *Bus) Timing() Timing {
	return b.timing
}
