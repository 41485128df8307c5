// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

// Package metrics provides Prometheus instrumentation for lifelogd:
// sync run outcomes, upstream API call counts, ledger size, storage
// operations, circuit breaker state, and HTTP endpoint latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Run Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: "success", "partial", "noop", "failure"
	)

	SyncRecordsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_records_merged_total",
			Help: "Total number of new lifelog records merged into storage",
		},
	)

	SyncAPICalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_api_calls_total",
			Help: "Total number of upstream API requests issued by sync runs",
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors by category",
		},
		[]string{"category"}, // auth, timeout, server, client, unknown, need_dupe_condition, storage
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync run",
		},
	)

	SyncSkippedFresh = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_skipped_fresh_total",
			Help: "Sync invocations skipped because the ledger was recently updated",
		},
	)

	// Ledger Metrics
	LedgerKnownIDs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_known_ids",
			Help: "Number of record identifiers tracked in the sync ledger",
		},
	)

	LedgerSyncedUntil = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_synced_until_timestamp",
			Help: "Unix timestamp the ledger considers fully synchronized",
		},
	)

	// Upstream API Metrics
	APIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "limitless_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	APIRequestsByStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limitless_requests_total",
			Help: "Total upstream API requests by HTTP status code",
		},
		[]string{"status_code"},
	)

	// Storage Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	// HTTP Endpoint Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Webhook notifications sent by outcome",
		},
		[]string{"result"}, // delivered, failed, disabled
	)
)

// RecordSyncRun records the standard metric set for a completed sync run.
func RecordSyncRun(strategy, outcome string, duration time.Duration, newRecords, apiCalls int) {
	SyncDuration.Observe(duration.Seconds())
	SyncRuns.WithLabelValues(strategy, outcome).Inc()
	SyncRecordsMerged.Add(float64(newRecords))
	SyncAPICalls.Add(float64(apiCalls))
	if outcome == "success" || outcome == "partial" || outcome == "noop" {
		SyncLastSuccess.SetToCurrentTime()
	}
}

// RecordHTTPRequest records request count and latency for an HTTP endpoint.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery records latency (and errors, if any) for a storage operation.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
