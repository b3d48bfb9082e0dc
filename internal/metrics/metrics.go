// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gamification"

var (
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Inbound domain events by type and outcome (acked, rejected, ignored).",
	}, []string{"type", "outcome"})

	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handle_duration_seconds",
		Help:      "Time spent handling one inbound delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	XpAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "xp_adjustments_total",
		Help:      "Ledger adjustments by outcome (applied, duplicate, zero, failed).",
	}, []string{"outcome"})

	BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "badges_awarded_total",
		Help:      "First-time badge grants by badge code.",
	}, []string{"badge_code"})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effect_failures_total",
		Help:      "Best-effort side effects that failed (publish, cache).",
	}, []string{"kind"})

	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_sync_runs_total",
		Help:      "Leaderboard synchronization runs by outcome.",
	}, []string{"outcome"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "leaderboard_sync_duration_seconds",
		Help:      "Duration of successful leaderboard synchronizations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	LeaderboardSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_reads_total",
		Help:      "Leaderboard reads by the source that served them (cache, snapshot, database).",
	}, []string{"source"})
)
