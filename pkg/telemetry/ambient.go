// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "context"

// Ambient holds the readings that do not come from the wind bus
type Ambient struct {
	Pressure    float64 `mapstructure:"pressure" yaml:"pressure"`
	Humidity    int     `mapstructure:"humidity" yaml:"humidity"`
	Temperature int     `mapstructure:"temperature" yaml:"temperature"`
}

// AmbientSource provides ambient readings
type AmbientSource interface {
	Ambient(ctx context.Context) (Ambient, error)
}

// StaticAmbient always returns the same readings
type StaticAmbient Ambient

// Ambient implements AmbientSource
func (s StaticAmbient) Ambient(context.Context) (Ambient, error) {
	return Ambient(s), nil
}
