// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Package metrics declares the Prometheus collectors for livetrack and small
// helpers to record into them. All collectors register with the default
// registry through promauto and are served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest results.
const (
	ResultAccepted    = "accepted"
	ResultStale       = "stale"
	ResultInvalid     = "invalid"
	ResultRateLimited = "rate_limited"
	ResultClosed      = "closed"
)

var (
	// Broadcaster
	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_samples_ingested_total",
			Help: "Position samples received by the broadcaster, by result",
		},
		[]string{"source", "result"}, // source: local, remote
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)

	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_active_subscribers",
			Help: "Subscribers currently attached to any session",
		},
	)

	SubscriberDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetrack_subscriber_dropped_total",
			Help: "Queued samples discarded because a subscriber fell behind",
		},
	)

	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetrack_sessions_reaped_total",
			Help: "Idle sessions reclaimed by the reaper",
		},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_sink_errors_total",
			Help: "Failures of post-ingest sinks",
		},
		[]string{"sink"},
	)

	// Store
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_store_operations_total",
			Help: "Last-known-sample store operations",
		},
		[]string{"operation", "status"},
	)

	StoreConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livetrack_store_conflict_retries_total",
			Help: "Store writes retried after a transaction conflict",
		},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_events_published_total",
			Help: "Sample events published to the event stream",
		},
		[]string{"status"},
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_events_relayed_total",
			Help: "Sample events consumed from other instances",
		},
		[]string{"result"},
	)

	// Push endpoint
	PushConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_push_connections",
			Help: "Open websocket push connections",
		},
	)

	PushMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_push_messages_sent_total",
			Help: "Frames written to push connections",
		},
		[]string{"type"},
	)

	// Client side
	TransportSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_transport_switches_total",
			Help: "Transport controller transitions into a transport",
		},
		[]string{"to"},
	)

	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_poll_requests_total",
			Help: "Polling fallback fetches, by outcome",
		},
		[]string{"outcome"}, // delivered, unchanged, not_found, error
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livetrack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker, by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livetrack_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_api_active_requests",
			Help: "HTTP requests currently being served",
		},
	)
)

// RecordIngest counts one ingest attempt.
func RecordIngest(source, result string) {
	SamplesIngested.WithLabelValues(source, result).Inc()
}

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOperation counts one store call.
func RecordStoreOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperations.WithLabelValues(operation, status).Inc()
}
