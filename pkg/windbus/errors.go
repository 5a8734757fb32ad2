// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import "errors"

var (
	// ErrTimeout is returned when no valid reply was recognized before the
	// transaction deadline. It is not fatal; the caller retries on its next
	// polling cycle.
	ErrTimeout = errors.New("windbus: no valid reply before deadline")

	// ErrInvalidAddress is returned when a read is addressed to the
	// broadcast address, which no sensor answers reads on.
	ErrInvalidAddress = errors.New("windbus: broadcast address is only valid for address change")
)
