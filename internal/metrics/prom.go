package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelforge_lines_total",
			Help: "Log lines seen by the parser, by result (parsed, skipped)",
		},
		[]string{"result"},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelforge_events_total",
			Help: "Authentication events received by the pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelforge_events_dropped_total",
			Help: "Events dropped before detection, by reason",
		},
		[]string{"reason"},
	)

	DetectionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinelforge_detection_runs_total",
			Help: "Detection batches executed",
		},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinelforge_detection_duration_seconds",
			Help:    "Duration of one detection batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelforge_alerts_total",
			Help: "Alerts produced by detection, by category",
		},
		[]string{"category"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinelforge_sink_errors_total",
			Help: "Failures delivering alerts to a sink, by sink",
		},
		[]string{"sink"},
	)
)
