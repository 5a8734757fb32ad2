// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"context"
	"time"
)

// Reading is a value decoded from a sensor response
type Reading struct {
	Quantity Quantity
	Address  byte
	Value    uint16
	Frame    Response
	Elapsed  time.Duration
	Resends  int
}

// ReadWindSpeed queries the wind speed sensor at address. The value is the
// raw register content in tenths of a metre per second.
func (b *Bus) ReadWindSpeed(ctx context.Context, address byte) (Reading, error) {
	return b.Read(ctx, WindSpeed, address)
}

// ReadWindDirection queries the wind direction sensor at address. The value
// is the direction sector code.
func (b *Bus) ReadWindDirection(ctx context.Context, address byte) (Reading, error) {
	return b.Read(ctx, WindDirection, address)
}

// Read queries quantity from the sensor at address
func (b *Bus) Read(ctx context.Context, q Quantity, address byte) (Reading, error) {
	if address == AddressBroadcast {
		return Reading{}, ErrInvalidAddress
	}

	query := BuildQuery(address, q.Register())
	raw, report, err := b.transact(ctx, q.String(), address, query[:], queryReply(address))
	if err != nil {
		return Reading{Quantity: q, Address: address, Elapsed: report.Elapsed, Resends: report.Resends}, err
	}

	var frame Response
	copy(frame[:], raw)
	return Reading{
		Quantity: q,
		Address:  address,
		Value:    frame.Decode(q),
		Frame:    frame,
		Elapsed:  report.Elapsed,
		Resends:  report.Resends,
	}, nil
}

// WindSpeed returns the raw wind speed at address, or SentinelWindSpeed when
// no reading was obtained
func (b *Bus) WindSpeed(ctx context.Context, address byte) int16 {
	r, err := b.ReadWindSpeed(ctx, address)
	if err != nil {
		return SentinelWindSpeed
	}
	return int16(r.Value)
}

// WindDirection returns the direction sector at address, or
// SentinelWindDirection when no reading was obtained
func (b *Bus) WindDirection(ctx context.Context, address byte) int16 {
	r, err := b.ReadWindDirection(ctx, address)
	if err != nil {
		return SentinelWindDirection
	}
	return int16(r.Value)
}
