package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pestvision",
		Name:      "detections_ingested_total",
		Help:      "Total number of detection envelopes ingested",
	}, []string{"stream_id"})

	SpraysTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pestvision",
		Name:      "sprays_triggered_total",
		Help:      "Total number of spray actuations fired",
	})

	SpraysSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pestvision",
		Name:      "sprays_suppressed_total",
		Help:      "Total number of detections that did not fire a spray",
	}, []string{"cause"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pestvision",
		Name:      "ingest_duration_seconds",
		Help:      "End-to-end duration of detection ingestion",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	LiveEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pestvision",
		Name:      "live_events_dropped_total",
		Help:      "Live events dropped because a subscriber buffer was full",
	})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pestvision",
		Name:      "live_subscribers",
		Help:      "Number of connected live-feed subscribers",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pestvision",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pestvision",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
