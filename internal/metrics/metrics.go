// Package metrics holds the Prometheus instruments of the authorization engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision metrics
var (
	// DecisionsTotal counts resolver outcomes.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions by scope, result and source",
		},
		[]string{"scope", "result", "source"},
	)

	// DecisionDuration tracks time spent resolving a single-scope requirement.
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_decision_duration_seconds",
			Help:    "Authorization decision latency in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"scope"},
	)

	// CacheRequestsTotal counts decision cache lookups.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_cache_requests_total",
			Help: "Total number of decision cache lookups by result",
		},
		[]string{"result"},
	)
)

// Grant metrics
var (
	// BulkPairsTotal counts pairs processed by bulk assignments.
	BulkPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_bulk_pairs_total",
			Help: "Total number of bulk assignment pairs by operation and result",
		},
		[]string{"operation", "result"},
	)

	// NotificationsTotal counts notification dispatch attempts.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_notifications_total",
			Help: "Total number of notification dispatches by result",
		},
		[]string{"result"},
	)
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordDecision records one resolved single-scope requirement.
func RecordDecision(scope string, allowed bool, source string, elapsed time.Duration) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	if source == "" {
		source = "none"
	}
	DecisionsTotal.WithLabelValues(scope, result, source).Inc()
	DecisionDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

// RecordCache records a decision cache lookup.
func RecordCache(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordBulkPair records the outcome of one bulk pair.
func RecordBulkPair(operation string, ok bool) {
	result := "assigned"
	if !ok {
		result = "skipped"
	}
	BulkPairsTotal.WithLabelValues(operation, result).Inc()
}

// RecordNotification records a notification dispatch.
func RecordNotification(err error) {
	result := "enqueued"
	if err != nil {
		result = "failed"
	}
	NotificationsTotal.WithLabelValues(result).Inc()
}
