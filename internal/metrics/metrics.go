// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracking metrics
	TrackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Tracking calls by kind and outcome",
		},
		[]string{"kind", "result"}, // kind: search_query, album_appearance, album_visit; result: accepted, rejected, dropped
	)

	TrackingSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_saves_total",
			Help: "Snapshot writes of tracking logs by outcome",
		},
		[]string{"log", "result"}, // result: success, failure, skipped
	)

	TrackingSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracking_save_duration_seconds",
			Help:    "Duration of tracking log snapshot writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"log"},
	)

	TrackingLogEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracking_log_entries",
			Help: "Current number of records held in each tracking log",
		},
		[]string{"log"},
	)

	TrackingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_queue_depth",
			Help: "Tasks waiting on the tracking executor",
		},
	)

	TrackingCleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cleanup_removed_total",
			Help: "Records dropped by the retention job",
		},
		[]string{"log"},
	)

	// Catalog metrics
	CatalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_lookups_total",
			Help: "Catalog response cache lookups by kind and result",
		},
		[]string{"kind", "result"}, // result: hit, miss
	)

	ITunesRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itunes_requests_total",
			Help: "Outbound iTunes API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, failure, rejected
	)

	ITunesRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itunes_request_duration_seconds",
			Help:    "Outbound iTunes API request duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"route"},
	)
)

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSave records the outcome of a tracking log write.
func RecordSave(log string, err error, duration time.Duration) {
	if err != nil {
		TrackingSaves.WithLabelValues(log, "failure").Inc()
		return
	}
	TrackingSaves.WithLabelValues(log, "success").Inc()
	TrackingSaveDuration.WithLabelValues(log).Observe(duration.Seconds())
}

// RecordITunesRequest records one outbound catalog call.
func RecordITunesRequest(endpoint, outcome string, duration time.Duration) {
	ITunesRequests.WithLabelValues(endpoint, outcome).Inc()
	if outcome != "rejected" {
		ITunesRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// RecordCacheLookup counts a catalog cache hit or miss.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CatalogCacheLookups.WithLabelValues(kind, result).Inc()
}
