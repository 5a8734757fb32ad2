// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry publishes station readings when they change.
//
// Five read-only properties are tracked. Updates that leave a value as it
// was are ignored; Flush publishes only the values changed since the last
// successful publication.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/anemostat/pkg/windbus"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Property names
const (
	PropertyPressure    = "pressure"
	PropertySpeed       = "speed"
	PropertyDirection   = "direction"
	PropertyHumidity    = "humidity"
	PropertyTemperature = "temperature"
)

// ErrUnknownProperty is returned when updating a property that does not exist
var ErrUnknownProperty = errors.New("telemetry: unknown property")

// ErrPropertyType is returned when a value has the wrong type for its property
var ErrPropertyType = errors.New("telemetry: wrong value type")

type kind int

const (
	kindFloat kind = iota
	kindInt
)

var propertyKinds = map[string]kind{
	PropertyPressure:    kindFloat,
	PropertySpeed:       kindFloat,
	PropertyDirection:   kindInt,
	PropertyHumidity:    kindInt,
	PropertyTemperature: kindInt,
}

// Update is one publication: the changed values and when they were taken
type Update struct {
	ID        string         `cbor:"id" json:"id"`
	Timestamp time.Time      `cbor:"ts" json:"ts"`
	Values    map[string]any `cbor:"values" json:"values"`
}

// Names returns the updated property names in sorted order
func (u Update) Names() []string {
	names := make([]string, 0, len(u.Values))
	for name := range u.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sink delivers updates somewhere
type Sink interface {
	Publish(ctx context.Context, u Update) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, u Update) error

// Publish calls f
func (f SinkFunc) Publish(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// Properties holds the current property values and which of them changed
type Properties struct {
	mu      sync.Mutex
	values  map[string]any
	changed map[string]bool

	sink    Sink
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures Properties
type Option func(*Properties)

// WithMinInterval caps publications to one per interval. Changes made in
// between are merged into the next publication.
func WithMinInterval(d time.Duration) Option {
	return func(p *Properties) {
		if d > 0 {
			p.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Properties) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProperties creates the property set publishing through sink
func NewProperties(sink Sink, opts ...Option) *Properties {
	p := &Properties{
		values:  map[string]any{},
		changed: map[string]bool{},
		sink:    sink,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Set stores value for name and marks it changed when it differs from the
// current value. It reports whether the value changed.
func (p *Properties) Set(name string, value any) (bool, error) {
	k, ok := propertyKinds[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	v, err := normalize(k, value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.values[name]; ok && cur == v {
		return false, nil
	}
	p.values[name] = v
	p.changed[name] = true
	return true, nil
}

// Get returns the current value of name
func (p *Properties) Get(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	return v, ok
}

// Snapshot returns a copy of every value set so far
func (p *Properties) Snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any, len(p.values))
	for name, v := range p.values {
		out[name] = v
	}
	return out
}

// Pending returns the names changed since the last publication
func (p *Properties) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.changed))
	for name := range p.changed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetReading stores a sensor reading. Speed is converted to m/s.
func (p *Properties) SetReading(r windbus.Reading) error {
	var err error
	switch r.Quantity {
	case windbus.WindSpeed:
		_, err = p.Set(PropertySpeed, float64(r.Value)/10.0)
	case windbus.WindDirection:
		_, err = p.Set(PropertyDirection, int(r.Value))
	}
	return err
}

// SetAmbient stores the ambient values
func (p *Properties) SetAmbient(a Ambient) error {
	if _, err := p.Set(PropertyPressure, a.Pressure); err != nil {
		return err
	}
	if _, err := p.Set(PropertyHumidity, a.Humidity); err != nil {
		return err
	}
	_, err := p.Set(PropertyTemperature, a.Temperature)
	return err
}

// Flush publishes the changed values. Nothing is sent when no value
// changed or when the rate limit defers the publication; deferred and failed
// changes stay pending for the next Flush.
func (p *Properties) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.changed) == 0 {
		p.mu.Unlock()
		return nil
	}
	if !p.limiter.Allow() {
		p.mu.Unlock()
		return nil
	}
	u := Update{ID: uuid.NewString(), Timestamp: p.now(), Values: make(map[string]any, len(p.changed))}
	for name := range p.changed {
		u.Values[name] = p.values[name]
	}
	p.changed = map[string]bool{}
	p.mu.Unlock()

	if err := p.sink.Publish(ctx, u); err != nil {
		p.mu.Lock()
		for name := range u.Values {
			// A newer Set may have changed it again already
			p.changed[name] = true
		}
		p.mu.Unlock()
		return fmt.Errorf("telemetry: publish: %w", err)
	}

	p.logger.Debug("telemetry published", zap.Strings("properties", u.Names()))
	return nil
}

func normalize(k kind, value any) (any, error) {
	switch k {
	case kindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		}
	case kindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int16:
			return int(v), nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case uint16:
			return int(v), nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrPropertyType, value)
}
