package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Token lifecycle
	TokenTransitions *prometheus.CounterVec
	CascadeCancelled prometheus.Counter
	CascadeRuns      prometheus.Counter

	// Stats cache
	StatsRefreshes      prometheus.Counter
	StatsCacheHits      prometheus.Counter
	StatsCacheMisses    prometheus.Counter
	StatsRefreshLatency prometheus.Histogram

	// Broadcast / side effects
	BroadcastsSent     *prometheus.CounterVec
	BroadcastFailures  *prometheus.CounterVec
	SideEffectFailures *prometheus.CounterVec

	// Database
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TokenTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_transitions_total",
			Help:      "Token status transitions by target status",
		}, []string{"status"}),
		CascadeCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_cancelled_tokens_total",
			Help:      "Tokens cancelled by availability cascades",
		}),
		CascadeRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_runs_total",
			Help:      "Cascade cancellation executions",
		}),
		StatsRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_refreshes_total",
			Help:      "Doctor stats recomputations",
		}),
		StatsCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_hits_total",
			Help:      "Stats reads served from the cache window",
		}),
		StatsCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_misses_total",
			Help:      "Stats reads that forced a recomputation",
		}),
		StatsRefreshLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_refresh_duration_seconds",
			Help:      "Stats recomputation latency",
			Buckets:   prometheus.DefBuckets,
		}),
		BroadcastsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_sent_total",
			Help:      "Events published by topic class",
		}, []string{"event_type"}),
		BroadcastFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Swallowed broadcast transport failures",
		}, []string{"event_type"}),
		SideEffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Swallowed best-effort side effect failures",
		}, []string{"kind"}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Database operations by name and outcome",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Database operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
