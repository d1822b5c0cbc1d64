// Package observability exposes Prometheus metrics for the statement import
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImportsTotal counts finished imports by terminal status.
var ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "imports",
	Name:      "total",
	Help:      "Total statement imports by terminal status.",
}, []string{"status"})

// TransactionsImported counts transactions persisted across all imports.
var TransactionsImported = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "imports",
	Name:      "transactions_imported_total",
	Help:      "Total transactions persisted from statement imports.",
})

// DuplicatesSkipped counts transactions rejected by deduplication.
var DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "imports",
	Name:      "duplicates_skipped_total",
	Help:      "Total transactions skipped as duplicates.",
})

// AmountCorrections counts sign flips where the type hint overrode the
// printed amount.
var AmountCorrections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "imports",
	Name:      "amount_corrections_total",
	Help:      "Total amounts re-signed to match an explicit credit/debit hint.",
})

// ExtractionMethod counts text extractions by method (local or ocr) and
// cache outcome.
var ExtractionMethod = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "extraction",
	Name:      "total",
	Help:      "Total text extractions by method and cache outcome.",
}, []string{"method", "cache"})

// ProviderCalls counts AI provider calls by operation and outcome.
var ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "provider",
	Name:      "calls_total",
	Help:      "Total AI provider calls by operation and outcome.",
}, []string{"operation", "outcome"})

// ProviderCallDuration tracks AI provider call latency.
var ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "coinbag",
	Subsystem: "provider",
	Name:      "call_duration_seconds",
	Help:      "AI provider call latency in seconds.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
}, []string{"operation"})

// CircuitBreakerState tracks the provider circuit breaker state
// (0=closed, 1=open, 2=half-open).
var CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "coinbag",
	Subsystem: "circuit_breaker",
	Name:      "state",
	Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
}, []string{"name"})

// RateLimitRejections counts imports rejected by the per-user hourly quota.
var RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "coinbag",
	Subsystem: "provider",
	Name:      "rate_limit_rejections_total",
	Help:      "Total AI calls rejected by the per-user hourly quota.",
})

// SetBreakerState maps a gobreaker state name onto the state gauge.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}
