// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

// Package metrics provides Prometheus instrumentation for Robovox.
//
// Collectors are registered via promauto at package load and exposed
// through /metrics on the supervision HTTP server. Instrumented areas:
//   - Bus publish/drop counters per channel
//   - Orchestrator phase transitions and dispatch counts
//   - UART line traffic, parse errors, reconnects
//   - Safety vetoes
//   - Supervision HTTP requests, MJPEG clients, operator sessions
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Bus metrics

	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_bus_publish_total",
			Help: "Total messages published per channel",
		},
		[]string{"channel", "topic"},
	)

	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_bus_publish_errors_total",
			Help: "Total failed publishes per channel",
		},
		[]string{"channel"},
	)

	BusDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_bus_dropped_total",
			Help: "Total messages dropped at subscription high-water mark",
		},
		[]string{"channel", "subscriber"},
	)

	BusBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robovox_bus_breaker_open",
			Help: "Publish circuit breaker state per channel (1=open)",
		},
		[]string{"channel"},
	)

	// Orchestrator metrics

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_phase_transitions_total",
			Help: "Total orchestrator phase transitions",
		},
		[]string{"from", "to", "event"},
	)

	CurrentPhase = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robovox_current_phase",
			Help: "Current orchestrator phase (0=idle 1=listening 2=thinking 3=speaking 4=error)",
		},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_events_dispatched_total",
			Help: "Total bus events dispatched by the orchestrator loop",
		},
		[]string{"topic"},
	)

	PhaseTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_phase_timeouts_total",
			Help: "Total soft phase timeouts fired",
		},
		[]string{"phase"},
	)

	SafetyVetoes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_safety_vetoes_total",
			Help: "Total movement commands refused or coerced by the safety layer",
		},
		[]string{"reason"}, // obstacle, warning_zone, stale_sensor
	)

	// UART bridge metrics

	UARTLinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_uart_lines_read_total",
			Help: "Total UART lines read per classification",
		},
		[]string{"kind"}, // data, ack, alert, scan, unknown
	)

	UARTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robovox_uart_parse_errors_total",
			Help: "Total UART lines that failed to parse",
		},
	)

	UARTWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robovox_uart_writes_total",
			Help: "Total commands written to the serial port",
		},
	)

	UARTWriteDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robovox_uart_write_drops_total",
			Help: "Total pending writes discarded when the queue was full",
		},
	)

	UARTReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robovox_uart_reconnects_total",
			Help: "Total serial port reopen attempts after failure",
		},
	)

	// Supervision HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robovox_http_request_duration_seconds",
			Help:    "Duration of supervision HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robovox_http_requests_denied_total",
			Help: "Total requests rejected by the CIDR allow-list",
		},
	)

	IntentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovox_intent_requests_total",
			Help: "Total intent POSTs by action and outcome",
		},
		[]string{"action", "outcome"}, // accepted, invalid, unavailable
	)

	MJPEGClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robovox_mjpeg_clients",
			Help: "Current number of connected MJPEG stream clients",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "robovox_operator_sessions",
			Help: "Current number of active operator sessions",
		},
	)
)

// RecordPublish records a successful bus publish.
func RecordPublish(channel, topic string) {
	BusPublishTotal.WithLabelValues(channel, topic).Inc()
}

// RecordPublishError records a failed bus publish.
func RecordPublishError(channel string) {
	BusPublishErrors.WithLabelValues(channel).Inc()
}

// RecordDrop records a message dropped at a subscription's high-water mark.
func RecordDrop(channel, subscriber string) {
	BusDroppedTotal.WithLabelValues(channel, subscriber).Inc()
}

// RecordTransition records an orchestrator phase transition and updates the
// current-phase gauge.
func RecordTransition(from, to, event string, phaseOrdinal int) {
	PhaseTransitions.WithLabelValues(from, to, event).Inc()
	CurrentPhase.Set(float64(phaseOrdinal))
}

// RecordVeto records a safety refusal or coercion.
func RecordVeto(reason string) {
	SafetyVetoes.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records a completed supervision HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordIntent records an intent POST outcome.
func RecordIntent(action, outcome string) {
	IntentRequests.WithLabelValues(action, outcome).Inc()
}
