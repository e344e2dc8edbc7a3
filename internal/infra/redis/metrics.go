package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the adapter's Redis metrics. Lookups are labeled by key
// prefix so decision keys and version counters can be told apart.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	lookups  *prometheus.CounterVec
	pool     *prometheus.GaugeVec
}

// DefaultMetrics is registered on the default registry.
var DefaultMetrics = NewMetrics("authz")

// NewMetrics registers the Redis metrics under the namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis round trips by operation.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"operation"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_errors_total",
			Help:      "Redis round trips that failed, by operation.",
		}, []string{"operation"}),
		lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "lookups_total",
			Help:      "Cache reads by key prefix and result (hit, miss).",
		}, []string{"prefix", "result"}),
		pool: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "pool",
			Help:      "Connection pool statistics as reported by go-redis.",
		}, []string{"stat"}),
	}
}

// ObserveOperation records one round trip.
func (m *Metrics) ObserveOperation(operation string, d time.Duration, err error) {
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

// RecordLookup counts a cache read under its key prefix.
func (m *Metrics) RecordLookup(prefix string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(prefix, result).Inc()
}

// UpdatePoolStats copies the client's pool counters into the gauges.
func (m *Metrics) UpdatePoolStats(client *Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	if stats == nil {
		return
	}
	for stat, v := range map[string]uint32{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	} {
		m.pool.WithLabelValues(stat).Set(float64(v))
	}
}

// StartPoolStatsCollector refreshes the pool gauges every interval until
// ctx ends or the returned stop function is called.
func StartPoolStatsCollector(ctx context.Context, client *Client, interval time.Duration) func() {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				DefaultMetrics.UpdatePoolStats(client)
			}
		}
	}()
	return cancel
}

// Timed starts timing an operation; call the result with its error.
func Timed(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		DefaultMetrics.ObserveOperation(operation, time.Since(start), err)
	}
}
