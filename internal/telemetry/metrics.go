/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the transform service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsTotal counts finished transform jobs by outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "jobs_total",
		Help:      "Transform jobs finished, labelled by outcome.",
	}, []string{"outcome"})

	// JobsRunning tracks transform jobs currently executing.
	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Name:      "jobs_running",
		Help:      "Transform jobs currently executing.",
	})

	// JobDuration observes wall-clock transform job duration.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skald",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of transform jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// JobErrors counts terminal job errors by error code name.
	JobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "job_errors_total",
		Help:      "Terminal transform errors, labelled by error code name.",
	}, []string{"code"})

	// SamplesWritten counts samples written to output containers per track type.
	SamplesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "samples_written_total",
		Help:      "Samples written to output containers, labelled by track type.",
	}, []string{"track_type"})

	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Name:      "api_requests_total",
		Help:      "HTTP API requests, labelled by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skald",
		Name:      "api_request_duration_seconds",
		Help:      "HTTP API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Name:      "api_active_connections",
		Help:      "In-flight HTTP API requests.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
