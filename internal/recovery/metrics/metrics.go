package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FailuresTotal tracks dead-lettered tasks per agent and error category
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_failures_total",
			Help: "Total number of failed tasks processed",
		},
		[]string{"agent", "category"},
	)

	// RecoveriesTotal tracks chosen recovery strategies per agent
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_recoveries_total",
			Help: "Total number of recovery actions executed",
		},
		[]string{"strategy", "agent"},
	)

	// EscalationsTotal tracks terminal escalations per agent
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Total number of escalations to operations",
		},
		[]string{"agent"},
	)

	// ProcessingDuration tracks per-message end-to-end processing time
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_processing_duration_seconds",
			Help:    "Per-message recovery processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// QueueBatchSize tracks received batch sizes
	QueueBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_queue_batch_size",
			Help:    "Number of messages per received batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)
)
