// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package display

import "errors"

// ErrUnsupported is returned where no i2c-dev interface exists
var ErrUnsupported = errors.New("display: I2C is only supported on Linux")

// I2C is unavailable on this platform
type I2C struct{}

// OpenI2C always fails on this platform
func OpenI2C(bus int) (*I2C, error) {
	return nil, ErrUnsupported
}

// Write always fails on this platform
func (b *I2C) Write(address byte, data []byte) error {
	return ErrUnsupported
}

// Close does nothing
func (b *I2C) Close() error {
	return nil
}
