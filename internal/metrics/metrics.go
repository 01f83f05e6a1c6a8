// Package metrics defines the Prometheus instrumentation for the
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scoring metrics
	EventsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowsnest_events_scored_total",
			Help: "Total number of events scored",
		},
	)

	EventsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowsnest_events_skipped_total",
			Help: "Total number of malformed events skipped",
		},
	)

	ScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crowsnest_score_duration_seconds",
			Help:    "Duration of single-event scoring in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowsnest_ingest_throttled_total",
			Help: "Total number of pushed events rejected by the ingest rate limiter",
		},
	)

	// Detection metrics
	FindingsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowsnest_findings_raised_total",
			Help: "Total number of threat findings raised",
		},
		[]string{"detector"},
	)

	AnomaliesRaised = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowsnest_anomalies_raised_total",
			Help: "Total number of anomaly findings raised",
		},
	)

	ActiveFindings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crowsnest_active_findings",
			Help: "Current number of unresolved findings",
		},
	)

	// Response metrics
	ResponsesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowsnest_responses_executed_total",
			Help: "Total number of automated response actions executed",
		},
		[]string{"action"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowsnest_notification_failures_total",
			Help: "Total number of failed escalation deliveries",
		},
		[]string{"channel"},
	)

	QuarantinedEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crowsnest_quarantined_entities",
			Help: "Current number of actively quarantined entities",
		},
	)

	// Cycle metrics
	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowsnest_cycle_errors_total",
			Help: "Total number of errors per periodic cycle",
		},
		[]string{"cycle"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crowsnest_cycle_duration_seconds",
			Help:    "Duration of periodic cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cycle"},
	)

	// Retention metrics
	RecordsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowsnest_records_evicted_total",
			Help: "Total number of records evicted by the retention sweep",
		},
		[]string{"kind"},
	)
)
