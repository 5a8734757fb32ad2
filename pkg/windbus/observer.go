// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import "time"

// Transaction kinds reported to observers
const (
	KindWindSpeed     = "wind_speed"
	KindWindDirection = "wind_direction"
	KindAddressChange = "address_change"
)

// Result is the outcome of a transaction
type Result int

// Result values
const (
	ResultOK Result = iota
	ResultTimeout
	ResultCanceled
	ResultError
)

// String returns the result name used in logs and metrics labels
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultTimeout:
		return "timeout"
	case ResultCanceled:
		return "canceled"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// Report describes a finished transaction
type Report struct {
	Kind    string
	Address byte
	Result  Result
	Elapsed time.Duration

	// Sends counts every write of the request, including the first
	Sends   int
	Resends int

	ChecksumMismatches int
	DiscardedBytes     int
}

// Observer receives a Report after every transaction
type Observer interface {
	ObserveTransaction(r Report)
}

// Observers fans a report out to several observers
type Observers []Observer

// ObserveTransaction forwards r to every observer
func (o Observers) ObserveTransaction(r Report) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveTransaction(r)
		}
	}
}
