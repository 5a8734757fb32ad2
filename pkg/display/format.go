// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"fmt"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

// Placeholder is shown when no reading is available
const Placeholder = "----"

// maxSpeed is the largest raw speed that fits on four digits
const maxSpeed = 9999

// FormatSpeed renders a raw wind speed (tenths of m/s) as four digits with
// the decimal point before the last digit. Negative values, including the
// no-reading sentinel, render as the placeholder.
func FormatSpeed(raw int16) (string, byte) {
	if raw < 0 {
		return Placeholder, 0
	}
	v := int(raw)
	if v > maxSpeed {
		v = maxSpeed
	}
	// Keep the digit before the decimal point so 5 reads 0.5
	return fmt.Sprintf("%4s", fmt.Sprintf("%02d", v)), DecimalDigit3
}

// FormatDirection renders a wind direction sector as its compass point.
// Codes outside the sixteen sectors, including the no-reading sentinel,
// render as the placeholder.
func FormatDirection(sector int16) (string, byte) {
	s := windbus.Sector(sector)
	if sector < 0 || !s.Valid() {
		return Placeholder, 0
	}
	return fmt.Sprintf("%4s", s.String()), 0
}
