package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordEventIngested(t *testing.T) {
	tests := []struct {
		name   string
		source string
		kind   string
	}{
		{"bundle spawn", "bundle", "agent.spawned"},
		{"bundle tick", "bundle", "timer.tick"},
		{"live diary", "live", "agent.diary_entry"},
		{"live unknown kind", "live", "autogen.handoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			RecordEventIngested(tt.source, tt.kind)

			// Verify counter was incremented
			count := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues(tt.source, tt.kind))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordBundleNormalized(t *testing.T) {
	before := testutil.ToFloat64(bundleNormalizationsTotal)

	RecordBundleNormalized(250, 12)
	RecordBundleNormalized(0, 0)

	after := testutil.ToFloat64(bundleNormalizationsTotal)
	assert.Equal(t, before+2, after)
}

func TestRecordSchemaViolation(t *testing.T) {
	before := testutil.ToFloat64(schemaViolationsTotal)

	RecordSchemaViolation()

	assert.Equal(t, before+1, testutil.ToFloat64(schemaViolationsTotal))
}

func TestRecordDegradedTimestamps(t *testing.T) {
	before := testutil.ToFloat64(degradedTimestampsTotal)

	RecordDegradedTimestamps(3)

	assert.Equal(t, before+3, testutil.ToFloat64(degradedTimestampsTotal))
}

func TestRecordMalformedEvent(t *testing.T) {
	RecordMalformedEvent("timer.tick")

	count := testutil.ToFloat64(malformedEventsTotal.WithLabelValues("timer.tick"))
	assert.Greater(t, count, 0.0)
}

func TestRecordLiveStatus(t *testing.T) {
	statuses := []string{"disconnected", "connecting", "connected", "error"}

	for _, status := range statuses {
		RecordLiveStatus(status)
		count := testutil.ToFloat64(liveStatusTransitionsTotal.WithLabelValues(status))
		assert.Greater(t, count, 0.0, "Failed for status: %s", status)
	}
}

func TestRecordReconnectAndRingDrops(t *testing.T) {
	reconnectsBefore := testutil.ToFloat64(liveReconnectAttemptsTotal)
	dropsBefore := testutil.ToFloat64(liveRingDropsTotal)

	RecordReconnectAttempt()
	RecordRingDrops(5)

	assert.Equal(t, reconnectsBefore+1, testutil.ToFloat64(liveReconnectAttemptsTotal))
	assert.Equal(t, dropsBefore+5, testutil.ToFloat64(liveRingDropsTotal))
}

func TestMetrics_Concurrent(t *testing.T) {
	// Test that metrics recording is thread-safe
	const goroutines = 10
	const iterations = 100

	done := make(chan bool, goroutines)
	before := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues("live", "concurrency.test"))

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordEventIngested("live", "concurrency.test")
				RecordDegradedTimestamps(1)
				RecordLiveStatus("connected")
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < goroutines; i++ {
		<-done
	}

	count := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues("live", "concurrency.test"))
	assert.Equal(t, before+float64(goroutines*iterations), count)
}

func TestMetrics_DifferentLabels(t *testing.T) {
	// Test that metrics with different labels are tracked separately
	RecordEventIngested("bundle", "agent.death")
	RecordEventIngested("live", "agent.death")
	RecordEventIngested("bundle", "agent.respawn")

	bundleDeaths := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues("bundle", "agent.death"))
	liveDeaths := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues("live", "agent.death"))
	bundleRespawns := testutil.ToFloat64(eventsIngestedTotal.WithLabelValues("bundle", "agent.respawn"))

	assert.Greater(t, bundleDeaths, 0.0)
	assert.Greater(t, liveDeaths, 0.0)
	assert.Greater(t, bundleRespawns, 0.0)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracer_InvalidEndpoint(t *testing.T) {
	// Empty endpoint should fail
	shutdown, err := InitTracer("test-service", "", 1.0)

	require.Error(t, err)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "failed to create trace exporter")
}

func TestInitTracer_ValidParameters(t *testing.T) {
	// Skip this test in CI or when OTLP endpoint is not available
	// This is an integration test that requires a real OTLP collector
	t.Skip("Skipping integration test - requires OTLP collector")

	shutdown, err := InitTracer("test-service", "localhost:4317", 1.0)

	if err != nil {
		assert.Contains(t, err.Error(), "failed to create trace exporter")
		return
	}

	require.NotNil(t, shutdown)
	defer shutdown(context.Background())
}

func TestInitTracer_SampleRatio(t *testing.T) {
	// A partial ratio must not break initialization (connect happens lazily,
	// so an unreachable endpoint is fine here).
	shutdown, err := InitTracer("telemetry-engine", "invalid-endpoint:1234", 0.1)

	if err != nil {
		assert.Contains(t, err.Error(), "failed to create trace exporter")
		return
	}
	if shutdown != nil {
		shutdown(context.Background())
	}
}
