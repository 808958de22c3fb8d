// Package observability provides Prometheus metrics instrumentation for the
// telemetry engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// BUNDLE METRICS
// =============================================================================

var (
	bundleNormalizationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_bundle_normalizations_total",
			Help: "Total number of successful bundle normalizations",
		},
	)

	bundleNormalizeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mortality_bundle_normalize_duration_seconds",
			Help:    "Bundle normalization duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	bundleEventsPerLoad = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mortality_bundle_events_per_load",
			Help:    "Event count per normalized bundle",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	schemaViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_schema_violations_total",
			Help: "Total number of bundle loads rejected by structural validation",
		},
	)
)

// =============================================================================
// EVENT METRICS
// =============================================================================

var (
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_events_ingested_total",
			Help: "Total telemetry events ingested",
		},
		[]string{"source", "kind"}, // source: bundle, live, bootstrap
	)

	degradedTimestampsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_degraded_timestamps_total",
			Help: "Total timestamps that fell back to the wall clock",
		},
	)

	malformedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_malformed_events_total",
			Help: "Total events whose payload was missing its kind's required field",
		},
		[]string{"kind"},
	)
)

// =============================================================================
// LIVE METRICS
// =============================================================================

var (
	liveStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_live_status_transitions_total",
			Help: "Total live connection status transitions",
		},
		[]string{"status"}, // status: disconnected, connecting, connected, error
	)

	liveReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_live_reconnect_attempts_total",
			Help: "Total scheduled reconnect attempts",
		},
	)

	liveRingDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_live_ring_drops_total",
			Help: "Total events evicted from the live ring buffer",
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordBundleNormalized records a successful bundle normalization.
// This should be called once per successful load.
func RecordBundleNormalized(eventCount int, durationMS int) {
	bundleNormalizationsTotal.Inc()
	bundleNormalizeDurationSeconds.Observe(float64(durationMS) / 1000.0)
	bundleEventsPerLoad.Observe(float64(eventCount))
}

// RecordSchemaViolation records a bundle load rejected by validation.
func RecordSchemaViolation() {
	schemaViolationsTotal.Inc()
}

// RecordEventIngested records one ingested event by source and kind.
func RecordEventIngested(source string, kind string) {
	eventsIngestedTotal.WithLabelValues(source, kind).Inc()
}

// RecordDegradedTimestamps records timestamps substituted with the wall clock.
func RecordDegradedTimestamps(count int) {
	degradedTimestampsTotal.Add(float64(count))
}

// RecordMalformedEvent records an event whose payload failed its kind check.
func RecordMalformedEvent(kind string) {
	malformedEventsTotal.WithLabelValues(kind).Inc()
}

// RecordLiveStatus records a live connection status transition.
// This should be called on every state change, including repeats.
func RecordLiveStatus(status string) {
	liveStatusTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordReconnectAttempt records one scheduled reconnect.
func RecordReconnectAttempt() {
	liveReconnectAttemptsTotal.Inc()
}

// RecordRingDrops records events evicted from the live ring buffer.
func RecordRingDrops(count int) {
	liveRingDropsTotal.Add(float64(count))
}
