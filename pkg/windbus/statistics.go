// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks transaction outcomes and line quality
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Transactions       uint64
	Successes          uint64
	Timeouts           uint64
	Failures           uint64
	Sends              uint64
	Resends            uint64
	ChecksumMismatches uint64
	DiscardedBytes     uint64

	// Sum of successful transaction latencies
	totalLatency time.Duration

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	TimeoutRate     float64 // timeouts/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// ObserveTransaction implements Observer
func (s *Statistics) ObserveTransaction(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Transactions++
	s.Sends += uint64(r.Sends)
	s.Resends += uint64(r.Resends)
	s.ChecksumMismatches += uint64(r.ChecksumMismatches)
	s.DiscardedBytes += uint64(r.DiscardedBytes)

	switch r.Result {
	case ResultOK:
		s.Successes++
		s.totalLatency += r.Elapsed
	case ResultTimeout:
		s.Timeouts++
	default:
		s.Failures++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates transaction and timeout rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		s.TimeoutRate = float64(s.Timeouts) / elapsed
	}
}

// SuccessPercent returns the share of successful transactions
func (s *Statistics) SuccessPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Transactions == 0 {
		return 0
	}
	return float64(s.Successes) * 100.0 / float64(s.Transactions)
}

// AverageLatency returns the mean duration of successful transactions
func (s *Statistics) AverageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Successes == 0 {
		return 0
	}
	return s.totalLatency / time.Duration(s.Successes)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	avg := s.AverageLatency()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var successPercent, timeoutPercent float64
	if s.Transactions > 0 {
		successPercent = float64(s.Successes) * 100.0 / float64(s.Transactions)
		timeoutPercent = float64(s.Timeouts) * 100.0 / float64(s.Transactions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", s.Successes, successPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", s.Timeouts, timeoutPercent)
	}
	if s.Failures > 0 {
		result += fmt.Sprintf("Failures:        %8d\n", s.Failures)
	}
	if s.Resends > 0 {
		result += fmt.Sprintf("Resends:         %8d\n", s.Resends)
	}
	if s.ChecksumMismatches > 0 {
		result += fmt.Sprintf("CRC Mismatches:  %8d\n", s.ChecksumMismatches)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}

	result += fmt.Sprintf("Avg Latency:     %8.1f ms\n", float64(avg.Microseconds())/1000.0)
	result += fmt.Sprintf("Transaction Rate:%8.1f tx/sec\n", s.TransactionRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.Transactions = 0
	s.Successes = 0
	s.Timeouts = 0
	s.Failures = 0
	s.Sends = 0
	s.Resends = 0
	s.ChecksumMismatches = 0
	s.DiscardedBytes = 0
	s.totalLatency = 0
	s.TransactionRate = 0
	s.TimeoutRate = 0
}
