// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"fmt"
	"strings"
)

// FormatFrameKind returns a human-readable name for a frame kind
func FormatFrameKind(k FrameKind) string {
	switch k {
	case FrameQuery:
		return "QUERY"
	case FrameResponse:
		return "RESPONSE"
	case FrameAddressChange:
		return "ADDRESS_CHANGE"
	case FrameAddressAck:
		return "ADDRESS_ACK"
	default:
		return "UNKNOWN"
	}
}

// FormatRegister returns a human-readable register name
func FormatRegister(reg uint16) string {
	switch reg {
	case RegisterWindSpeed:
		return "WIND_SPEED"
	case RegisterWindDirection:
		return "WIND_DIRECTION"
	case RegisterAddress:
		return "ADDRESS"
	default:
		return fmt.Sprintf("0x%04X", reg)
	}
}

// FormatWindSpeed formats a raw wind speed in tenths of a metre per second
func FormatWindSpeed(raw uint16) string {
	return fmt.Sprintf("%.1f m/s", float64(raw)/10.0)
}

// FormatWindDirection formats a direction sector code
func FormatWindDirection(raw uint16) string {
	s := Sector(raw)
	if !s.Valid() {
		return fmt.Sprintf("invalid sector %d", raw)
	}
	return fmt.Sprintf("%s (%.1f°)", s, s.Degrees())
}

// FormatReading formats a decoded reading
func FormatReading(r Reading) string {
	var value string
	if r.Quantity == WindDirection {
		value = FormatWindDirection(r.Value)
	} else {
		value = FormatWindSpeed(r.Value)
	}
	return fmt.Sprintf("%s @0x%02X: %s (raw=%d, %d ms, resends=%d)",
		r.Quantity, r.Address, value, r.Value, r.Elapsed.Milliseconds(), r.Resends)
}

// FormatFrame formats a bus frame in human-readable form
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	kind := FormatFrameKind(f.Kind)

	result := fmt.Sprintf("[%s] %s addr=0x%02X len=%d\n", timestamp, kind, f.Address(), len(f.Bytes))

	switch f.Kind {
	case FrameQuery:
		reg := uint16(f.Bytes[2])<<8 | uint16(f.Bytes[3])
		result += fmt.Sprintf("  Register: %s\n", FormatRegister(reg))
	case FrameResponse:
		value := uint16(f.Bytes[3])<<8 | uint16(f.Bytes[4])
		result += fmt.Sprintf("  Value: %d (as speed: %s, as direction: %s)\n",
			value, FormatWindSpeed(value), FormatWindDirection(uint16(f.Bytes[4])))
	case FrameAddressChange:
		result += fmt.Sprintf("  New Address: 0x%02X\n", f.Bytes[8])
	case FrameAddressAck:
		result += "  Power cycle the sensor to apply the new address\n"
	}

	return result + formatHexDump(f.Bytes)
}

func formatHexDump(b []byte) string {
	var sb strings.Builder
	sb.WriteString("  Bytes: ")
	for i, v := range b {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n         ")
		}
		sb.WriteString(fmt.Sprintf("%02X ", v))
	}
	sb.WriteString("\n")
	return sb.String()
}
