package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortality-lab/telemetry/engine/bundle"
)

// =============================================================================
// CAPTURE LOGGER TESTS
// =============================================================================

func TestCaptureLogger(t *testing.T) {
	t.Run("records levels in order", func(t *testing.T) {
		logger := NewCaptureLogger()

		logger.Debug("first")
		logger.Info("second")
		logger.Warn("third")
		logger.Error("fourth")

		logs := logger.GetLogs()
		require.Len(t, logs, 4)
		assert.Equal(t, "debug", logs[0].Level)
		assert.Equal(t, "info", logs[1].Level)
		assert.Equal(t, "warn", logs[2].Level)
		assert.Equal(t, "error", logs[3].Level)
		assert.Equal(t, "second", logs[1].Message)
	})

	t.Run("parses key value pairs", func(t *testing.T) {
		logger := NewCaptureLogger()

		logger.Info("live_frame", "seq", int64(7), "kind", "agent.diary")

		logs := logger.GetLogs()
		require.Len(t, logs, 1)
		assert.Equal(t, int64(7), logs[0].Fields["seq"])
		assert.Equal(t, "agent.diary", logs[0].Fields["kind"])
	})

	t.Run("HasLog matches level and message", func(t *testing.T) {
		logger := NewCaptureLogger()
		logger.Warn("live_dial_failed", "err", "refused")

		assert.True(t, logger.HasLog("warn", "live_dial_failed"))
		assert.False(t, logger.HasLog("error", "live_dial_failed"))
		assert.False(t, logger.HasLog("warn", "live_closed_clean"))
	})

	t.Run("Clear resets captured entries", func(t *testing.T) {
		logger := NewCaptureLogger()
		logger.Info("before")

		logger.Clear()

		assert.Empty(t, logger.GetLogs())
		assert.False(t, logger.HasLog("info", "before"))
	})

	t.Run("GetLogs returns a copy", func(t *testing.T) {
		logger := NewCaptureLogger()
		logger.Info("original")

		logs := logger.GetLogs()
		logs[0].Message = "mutated"

		assert.Equal(t, "original", logger.GetLogs()[0].Message)
	})
}

// =============================================================================
// BUNDLE BUILDER TESTS
// =============================================================================

func TestBundleBuilderDefaults(t *testing.T) {
	raw := NewBundleBuilder().Build()

	assert.Equal(t, "mortality/ui#events", raw["bundle_type"])
	assert.Equal(t, 1, raw["schema_version"])
	assert.NotEmpty(t, raw["exported_at"])
	assert.Empty(t, raw["events"])
}

func TestBundleBuilderOutputNormalizes(t *testing.T) {
	// The builder's whole job is producing documents the normalizer accepts.
	raw := NewBundleBuilder().
		WithExperiment("run-7", "countdown study").
		WithAgent("keeper", map[string]any{"display_name": "Keeper"}).
		WithEvent(2, "agent.death", "2024-01-01T10:01:01Z", map[string]any{"agent_id": "keeper"}).
		WithEvent(1, "timer.started", "2024-01-01T10:00:01Z", map[string]any{"agent_id": "keeper", "duration_ms": int64(60000)}).
		WithDiary("keeper", map[string]any{"life_index": 0, "entry_index": 0, "text": "note", "created_at": "2024-01-01T10:00:30Z"}).
		WithMetadata("run_id", "r-42").
		Build()

	data, err := json.Marshal(raw)
	require.NoError(t, err)

	b, err := bundle.NewNormalizer(nil, nil, nil).Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "run-7", b.Experiment.Slug)
	require.Len(t, b.Events, 2)
	assert.EqualValues(t, 1, b.Events[0].Seq) // sorted by timestamp
	assert.EqualValues(t, 2, b.Events[1].Seq)
	assert.Len(t, b.Diaries["keeper"], 1)
	assert.Zero(t, b.DegradedTimestamps)
}

// =============================================================================
// FRAME BUILDER TESTS
// =============================================================================

func TestEventFrameShape(t *testing.T) {
	frame := EventFrame(9, "timer.tick", "2024-01-01T10:00:05Z", map[string]any{"ms_left": int64(55000)})

	assert.Equal(t, "event", frame["type"])
	assert.Equal(t, int64(9), frame["seq"])
	assert.Equal(t, "timer.tick", frame["event"])
	assert.Equal(t, "2024-01-01T10:00:05Z", frame["ts"])
	assert.Equal(t, int64(55000), frame["payload"].(map[string]any)["ms_left"])
}

func TestInitialStateFrameOmitsNilSections(t *testing.T) {
	frame := InitialStateFrame(nil, nil, nil)

	assert.Equal(t, "initial_state", frame["type"])
	assert.NotContains(t, frame, "agents")
	assert.NotContains(t, frame, "timers")
	assert.NotContains(t, frame, "recent_events")

	full := InitialStateFrame(
		map[string]any{"keeper": map[string]any{}},
		map[string]any{"keeper": map[string]any{"ms_left": int64(1000)}},
		[]any{EventFrame(1, "agent.spawned", "2024-01-01T10:00:00Z", nil)},
	)
	assert.Contains(t, full, "agents")
	assert.Contains(t, full, "timers")
	assert.Contains(t, full, "recent_events")
}

// =============================================================================
// FEED SERVER TESTS
// =============================================================================

func dialFeed(t *testing.T, srv *FeedServer) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestFeedServerHandsOutConnections(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	dialFeed(t, srv)

	conn, err := srv.WaitForConn(2 * time.Second)
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestFeedServerWaitForConnTimesOut(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	_, err := srv.WaitForConn(50 * time.Millisecond)
	assert.Error(t, err)
}

func TestFeedServerRecordsClientFrames(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	ws := dialFeed(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "request_state"}))

	require.Eventually(t, func() bool {
		return srv.HasReceived("request_state")
	}, 2*time.Second, 10*time.Millisecond)

	received := srv.Received()
	require.NotEmpty(t, received)
	assert.Equal(t, "request_state", received[0]["type"])
}

func TestFeedServerAnswersPingWithPong(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	ws := dialFeed(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]any{"type": "ping"}))

	var reply map[string]any
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "pong", reply["type"])
	assert.True(t, srv.HasReceived("ping"))
}

func TestFeedConnSendJSONReachesClient(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	ws := dialFeed(t, srv)
	conn, err := srv.WaitForConn(2 * time.Second)
	require.NoError(t, err)

	require.NoError(t, conn.SendJSON(EventFrame(3, "agent.message", "2024-01-01T10:00:02Z", map[string]any{"agent_id": "keeper"})))

	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, "event", frame["type"])
	assert.EqualValues(t, 3, frame["seq"])
	assert.Equal(t, "agent.message", frame["event"])
}

func TestFeedConnCloseCleanSendsNormalClosure(t *testing.T) {
	srv := NewFeedServer()
	defer srv.Close()

	ws := dialFeed(t, srv)
	conn, err := srv.WaitForConn(2 * time.Second)
	require.NoError(t, err)

	require.NoError(t, conn.CloseClean())

	var frame map[string]any
	err = ws.ReadJSON(&frame)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
