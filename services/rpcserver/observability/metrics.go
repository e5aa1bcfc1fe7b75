// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the RPC server.
//
// Metrics cover the dispatch path: call counts by experiment, function,
// and outcome, call latency, and in-flight calls. Exposed via /metrics
// for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "classlab"

// Subsystem for dispatch metrics
const dispatchSubsystem = "rpc"

// Metrics holds the Prometheus collectors for the dispatch path.
// Initialize once at startup via NewMetrics().
type Metrics struct {
	// CallsTotal counts dispatched calls.
	// Labels: experiment, func, status (ok, error, rejected)
	CallsTotal *prometheus.CounterVec

	// CallDurationSeconds measures invocation latency, gate check to log
	// write. Labels: experiment, func
	CallDurationSeconds *prometheus.HistogramVec

	// ActiveCalls tracks calls currently in flight.
	ActiveCalls prometheus.Gauge

	// LogRowsTotal counts log rows written.
	// Labels: experiment, outcome (result, error)
	LogRowsTotal *prometheus.CounterVec
}

// NewMetrics registers the dispatch collectors with a registerer.
// Pass prometheus.DefaultRegisterer in main; tests use their own registry
// so repeated construction does not panic on duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: dispatchSubsystem,
			Name:      "calls_total",
			Help:      "Dispatched calls by experiment, function, and status.",
		}, []string{"experiment", "func", "status"}),
		CallDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: dispatchSubsystem,
			Name:      "call_duration_seconds",
			Help:      "Latency of function invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"experiment", "func"}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: dispatchSubsystem,
			Name:      "active_calls",
			Help:      "Calls currently in flight.",
		}),
		LogRowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: dispatchSubsystem,
			Name:      "log_rows_total",
			Help:      "Invocation log rows written, by outcome.",
		}, []string{"experiment", "outcome"}),
	}
}
