package live

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/engine/testutil"
)

func TestIsCleanClose(t *testing.T) {
	assert.True(t, IsCleanClose(nil))
	assert.True(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.True(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsCleanClose(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.False(t, IsCleanClose(errors.New("read tcp: connection reset")))
}

// =============================================================================
// REAL-SOCKET INTEGRATION
// =============================================================================

// These run the reconciler over actual websockets against an in-process feed,
// covering the production dialer, frame decoding, the heartbeat exchange, and
// the close handshake. The system clock drives them, so the heartbeat
// interval is shrunk to keep the tests quick.

func TestReconcilerOverRealWebsocket(t *testing.T) {
	srv := testutil.NewFeedServer()
	defer srv.Close()

	cfg := config.DefaultEngineConfig()
	cfg.PingIntervalMS = 25
	logger := testutil.NewCaptureLogger()
	r := NewReconciler(cfg, nil, nil, logger)
	defer r.Close()

	updates := make(chan Update, 64)
	defer r.Subscribe(func(u Update) { updates <- u })()

	r.Connect(srv.URL())
	waitForStatus(t, updates, StatusConnected)

	feed, err := srv.WaitForConn(2 * time.Second)
	require.NoError(t, err)

	require.NoError(t, feed.SendJSON(testutil.InitialStateFrame(
		map[string]any{"keeper": map[string]any{"display_name": "Keeper"}}, nil, nil,
	)))
	waitForState(t, updates, func(s *LiveState) bool { return len(s.Profiles) == 1 })

	r.RequestState()
	require.Eventually(t, func() bool {
		return srv.HasReceived("request_state")
	}, 2*time.Second, 10*time.Millisecond)

	// Heartbeat round trip: our ping reaches the feed, its pong reaches us.
	require.Eventually(t, func() bool {
		return srv.HasReceived("ping")
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return logger.HasLog("debug", "live_pong")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, feed.SendJSON(testutil.EventFrame(1, "agent.message", tsAt(1000),
		map[string]any{"agent_id": "keeper", "content": "hello"})))
	waitForState(t, updates, func(s *LiveState) bool { return s.Metrics.TotalMessages == 1 })

	require.NoError(t, feed.CloseClean())
	u := waitForStatus(t, updates, StatusDisconnected)
	assert.Contains(t, u.State.Profiles, "keeper")
}

func TestRealWebsocketUncleanCloseEntersError(t *testing.T) {
	srv := testutil.NewFeedServer()
	defer srv.Close()

	cfg := config.DefaultEngineConfig()
	cfg.PingIntervalMS = 0
	cfg.ReconnectBaseDelayMS = 600000
	r := NewReconciler(cfg, nil, nil, nil)
	defer r.Close()

	updates := make(chan Update, 64)
	defer r.Subscribe(func(u Update) { updates <- u })()

	r.Connect(srv.URL())
	waitForStatus(t, updates, StatusConnected)

	feed, err := srv.WaitForConn(2 * time.Second)
	require.NoError(t, err)
	require.NoError(t, feed.CloseAbrupt())

	u := waitForStatus(t, updates, StatusError)
	assert.NotEmpty(t, u.LastError)
}

func TestWebsocketDialerWrapsDialFailure(t *testing.T) {
	// Dial a feed that has already gone away.
	srv := testutil.NewFeedServer()
	url := srv.URL()
	srv.Close()

	cfg := config.DefaultEngineConfig()
	cfg.ReconnectBaseDelayMS = 600000
	logger := testutil.NewCaptureLogger()
	r := NewReconciler(cfg, nil, nil, logger)
	defer r.Close()

	updates := make(chan Update, 64)
	defer r.Subscribe(func(u Update) { updates <- u })()

	r.Connect(url)

	u := waitForStatus(t, updates, StatusError)
	assert.True(t, strings.HasPrefix(u.LastError, "dial live feed"))
	assert.True(t, logger.HasLog("warn", "live_dial_failed"))
}
