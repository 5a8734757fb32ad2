// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes bus and reading metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

const namespace = "anemostat"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BusMetrics records transaction outcomes and the latest readings.
// It implements windbus.Observer.
type BusMetrics struct {
	Transactions       *prometheus.CounterVec // labels: kind, result
	Duration           *prometheus.HistogramVec
	Resends            prometheus.Counter
	ChecksumMismatches prometheus.Counter
	DiscardedBytes     prometheus.Counter
	WindSpeed          prometheus.Gauge
	WindDirection      prometheus.Gauge
}

// NewBusMetrics registers and returns the bus metrics
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Sensor bus transactions by kind and result.",
		}, []string{"kind", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time from the first request write to the end of the transaction.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.2},
		}, []string{"kind"}),
		Resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resends_total",
			Help:      "Requests written again after the resend interval passed without a reply.",
		}),
		ChecksumMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Complete replies dropped for a bad checksum.",
		}),
		DiscardedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_bytes_total",
			Help:      "Received bytes that did not belong to an expected reply.",
		}),
		WindSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wind_speed_raw",
			Help:      "Last wind speed reading in tenths of a metre per second.",
		}),
		WindDirection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wind_direction_sector",
			Help:      "Last wind direction sector, 0 is north, clockwise in 22.5 degree steps.",
		}),
	}
	reg.MustRegister(m.Transactions, m.Duration, m.Resends, m.ChecksumMismatches, m.DiscardedBytes, m.WindSpeed, m.WindDirection)
	return m
}

// ObserveTransaction implements windbus.Observer
func (m *BusMetrics) ObserveTransaction(r windbus.Report) {
	m.Transactions.WithLabelValues(r.Kind, r.Result.String()).Inc()
	m.Duration.WithLabelValues(r.Kind).Observe(r.Elapsed.Seconds())
	m.Resends.Add(float64(r.Resends))
	m.ChecksumMismatches.Add(float64(r.ChecksumMismatches))
	m.DiscardedBytes.Add(float64(r.DiscardedBytes))
}

// ObserveReading updates the reading gauges
func (m *BusMetrics) ObserveReading(r windbus.Reading) {
	switch r.Quantity {
	case windbus.WindSpeed:
		m.WindSpeed.Set(float64(r.Value))
	case windbus.WindDirection:
		m.WindDirection.Set(float64(r.Value))
	}
}
