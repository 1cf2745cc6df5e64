package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepsTotal counts integration sub-steps by scheme and outcome.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_steps_total",
		Help: "Integration sub-steps by scheme and outcome",
	}, []string{"scheme", "outcome"}) // "accepted" or "rejected"

	// TerminationsTotal counts finished particles by reason.
	TerminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_terminations_total",
		Help: "Terminated particles by reason",
	}, []string{"reason"})

	// MigrationsTotal counts particles handed to another rank.
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_migrations_total",
		Help: "Particles migrated between ranks",
	}, []string{"strategy"})

	// MessagesTotal counts flushed migration messages.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_messages_total",
		Help: "Migration messages sent, one per destination flush",
	}, []string{"strategy"})

	// MessageBytes tracks the encoded size of migration messages.
	MessageBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowline_message_bytes",
		Help:    "Encoded migration message size in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10),
	})

	// CacheEvents counts domain cache lookups and evictions.
	CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_domain_cache_events_total",
		Help: "Domain cache hits, misses and evictions",
	}, []string{"event"})

	// RoundDuration tracks the wall time of one synchronization round.
	RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowline_round_duration_seconds",
		Help:    "Synchronization round duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	})

	// RunsTotal counts finished runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_runs_total",
		Help: "Runs by terminal status",
	}, []string{"status"})
)
