// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package display

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target address
const i2cSlave = 0x0703

// I2C is a Linux i2c-dev bus
type I2C struct {
	mu      sync.Mutex
	fd      int
	path    string
	current int
}

// OpenI2C opens /dev/i2c-<bus>
func OpenI2C(bus int) (*I2C, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &I2C{fd: fd, path: path, current: -1}, nil
}

// Write sends data to the device at address
func (b *I2C) Write(address byte, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != int(address) {
		if err := unix.IoctlSetInt(b.fd, i2cSlave, int(address)); err != nil {
			return fmt.Errorf("%s: select 0x%02X: %w", b.path, address, err)
		}
		b.current = int(address)
	}

	n, err := unix.Write(b.fd, data)
	if err != nil {
		return fmt.Errorf("%s: write: %w", b.path, err)
	}
	if n != len(data) {
		return fmt.Errorf("%s: short write: %d of %d bytes", b.path, n, len(data))
	}
	return nil
}

// Close releases the bus
func (b *I2C) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return unix.Close(b.fd)
}
