// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signet.
//
// go-signet is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for the signing
// engine: operation counters and latency histograms per component,
// batch and watcher throughput, multisig session state, and HTTP
// middleware for the REST server.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all engine metrics
	Namespace = "signet"

	// Label names
	LabelOperation  = "operation"
	LabelComponent  = "component"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelResult     = "result"
	LabelState      = "state"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Component names
	ComponentKeyStore = "keystore"
	ComponentTrust    = "trust"
	ComponentSigner   = "signer"
	ComponentVerifier = "verifier"
	ComponentBatch    = "batch"
	ComponentWatcher  = "watcher"
	ComponentMultiSig = "multisig"

	// Operation names
	OpGenerate  = "generate"
	OpRotate    = "rotate"
	OpDelete    = "delete"
	OpRevoke    = "revoke"
	OpSeal      = "seal"
	OpUnseal    = "unseal"
	OpTrust     = "trust"
	OpReinstate = "reinstate"
	OpEvaluate  = "evaluate"
	OpSign      = "sign"
	OpVerify    = "verify"
	OpCollect   = "collect"
	OpCreate    = "create"
	OpComplete  = "complete"
	OpCancel    = "cancel"
	OpReset     = "reset"
)

var (
	// OperationsTotal tracks the total number of engine operations by
	// component, operation, and status. Use RecordOperation.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of engine operations by component, operation, and status",
		},
		[]string{LabelComponent, LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of engine operations in seconds.
	// Buckets are optimized for typical signing and verification latencies.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelComponent, LabelOperation},
	)

	// ErrorsTotal tracks the total number of errors by component, operation,
	// and error type. Error types should be specific (e.g. "key_not_found").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component, operation, and error type",
		},
		[]string{LabelComponent, LabelOperation, LabelErrorType},
	)

	// BatchItemsTotal tracks processed batch items by result
	// (success, failure, cancelled, timeout).
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Total number of processed batch items by result",
		},
		[]string{LabelResult},
	)

	// BatchJobsActive tracks the number of batch jobs currently running.
	BatchJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "batch",
			Name:      "jobs_active",
			Help:      "Number of batch jobs currently running",
		},
	)

	// WatcherEventsTotal tracks filesystem events by outcome
	// (accepted, filtered, dropped).
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "events_total",
			Help:      "Total number of filesystem events by outcome",
		},
		[]string{LabelResult},
	)

	// WatchersActive tracks the number of active watchers.
	WatchersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "active",
			Help:      "Number of active filesystem watchers",
		},
	)

	// MultiSigSessions tracks the number of multisig sessions by state.
	MultiSigSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "multisig",
			Name:      "sessions",
			Help:      "Number of multisig sessions by state",
		},
		[]string{LabelState},
	)

	// KeysTotal tracks the number of stored keys by status.
	KeysTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "keys_total",
			Help:      "Number of stored keys by status",
		},
		[]string{LabelStatus},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an engine operation with its duration and
// status.
//
// Example:
//
//	start := time.Now()
//	err := store.Generate(ctx, name, alg, passphrase)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.ComponentKeyStore, metrics.OpGenerate, status, time.Since(start).Seconds())
func RecordOperation(component, operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(component, operation, status).Inc()
	OperationDuration.WithLabelValues(component, operation).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
func RecordError(component, operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(component, operation, errorType).Inc()
}

// RecordBatchItem records the outcome of a single batch item.
func RecordBatchItem(result string) {
	if !enabled.Load() {
		return
	}
	BatchItemsTotal.WithLabelValues(result).Inc()
}

// RecordWatcherEvent records the outcome of a filesystem event.
func RecordWatcherEvent(result string) {
	if !enabled.Load() {
		return
	}
	WatcherEventsTotal.WithLabelValues(result).Inc()
}

// SetMultiSigSessions sets the session gauge for a state.
func SetMultiSigSessions(state string, count float64) {
	if !enabled.Load() {
		return
	}
	MultiSigSessions.WithLabelValues(state).Set(count)
}

// SetKeysTotal sets the stored key gauge for a status.
func SetKeysTotal(status string, count float64) {
	if !enabled.Load() {
		return
	}
	KeysTotal.WithLabelValues(status).Set(count)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
