package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mortality-lab/telemetry/engine/clock"
	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/engine/observability"
	"github.com/mortality-lab/telemetry/engine/snapshot"
	"github.com/mortality-lab/telemetry/event"
)

var tracer = otel.Tracer("telemetry/live")

// SocketStatus is the connection state of the live feed.
type SocketStatus string

const (
	StatusDisconnected SocketStatus = "disconnected"
	StatusConnecting   SocketStatus = "connecting"
	StatusConnected    SocketStatus = "connected"
	StatusError        SocketStatus = "error"
)

// Update is what subscribers receive after every published change.
type Update struct {
	Status    SocketStatus
	LastError string
	State     *LiveState
}

// =============================================================================
// MAILBOX MESSAGES
// =============================================================================

// Everything that can happen to the reconciler arrives as one of these,
// consumed one at a time by the run goroutine. Socket reads, timer fires and
// caller commands queue behind each other instead of racing.
type (
	cmdConnect      struct{ url string }
	cmdDisconnect   struct{}
	cmdRequestState struct{}
	cmdShutdown     struct{}

	connOpened struct {
		connID string
		conn   Conn
	}
	connFailed struct {
		connID string
		err    error
	}
	connClosed struct {
		connID string
		err    error
	}
	inboundFrame struct {
		connID string
		frame  map[string]any
	}
	pingDue      struct{ connID string }
	reconnectDue struct{}
)

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler owns one live feed connection and the state reconciled from it.
//
// Connection states:
//
//	disconnected --Connect--> connecting --open--> connected
//	connecting/connected --unclean close--> error --backoff timer--> connecting
//	connected --clean close--> disconnected (no retry)
//	error, attempts exhausted --Connect--> connecting
//	any --Disconnect--> disconnected (state reset to the empty default)
//
// A single run goroutine consumes the mailbox and is the only code that
// mutates the reconciler. Public methods post messages and read published
// snapshots; they never touch the connection or the fold directly.
type Reconciler struct {
	cfg    *config.EngineConfig
	clk    clock.Clock
	logger event.Logger
	dial   Dialer

	mailbox chan any
	done    chan struct{}

	mu          sync.Mutex
	state       *LiveState
	status      SocketStatus
	lastError   string
	subscribers map[int]func(Update)
	nextSubID   int

	// Owned by the run goroutine; nothing else reads or writes these.
	url         string
	conn        Conn
	connID      string
	attempts    int
	reconnect   clock.Timer
	ping        clock.Timer
	dialCancel  context.CancelFunc
	sessionSpan trace.Span
}

// NewReconciler constructs a reconciler and starts its run goroutine. Nil
// arguments fall back to the global config, the production websocket dialer,
// the system clock, and a no-op logger. Callers must Close it.
func NewReconciler(cfg *config.EngineConfig, dial Dialer, clk clock.Clock, logger event.Logger) *Reconciler {
	if cfg == nil {
		cfg = config.GetEngineConfig()
	}
	if dial == nil {
		dial = WebsocketDialer()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = event.NopLogger{}
	}
	r := &Reconciler{
		cfg:         cfg,
		clk:         clk,
		logger:      logger,
		dial:        dial,
		mailbox:     make(chan any, 256),
		done:        make(chan struct{}),
		state:       NewLiveState(cfg.RingCapacity),
		status:      StatusDisconnected,
		subscribers: make(map[int]func(Update)),
	}
	go r.run()
	return r
}

// Connect opens the feed at url. Ignored while already connecting or
// connected; from the error state it starts a fresh attempt cycle.
func (r *Reconciler) Connect(url string) {
	r.post(cmdConnect{url: url})
}

// Disconnect tears the connection down, cancels any pending reconnect, and
// resets the state to the empty default.
func (r *Reconciler) Disconnect() {
	r.post(cmdDisconnect{})
}

// RequestState asks the feed to resend its full snapshot.
func (r *Reconciler) RequestState() {
	r.post(cmdRequestState{})
}

// Close disconnects and stops the run goroutine. Idempotent.
func (r *Reconciler) Close() {
	select {
	case r.mailbox <- cmdShutdown{}:
		<-r.done
	case <-r.done:
	}
}

// State returns the latest published state. The returned value is immutable;
// it goes stale rather than changing underneath the caller.
func (r *Reconciler) State() *LiveState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the connection state and the last connection error message.
func (r *Reconciler) Status() (SocketStatus, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.lastError
}

// Subscribe registers fn for every published update.
// Returns an unsubscribe function for cleanup.
func (r *Reconciler) Subscribe(fn func(Update)) func() {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

// post delivers a message to the run goroutine, dropping it when the
// reconciler has shut down.
func (r *Reconciler) post(msg any) {
	select {
	case r.mailbox <- msg:
	case <-r.done:
	}
}

// =============================================================================
// RUN LOOP
// =============================================================================

func (r *Reconciler) run() {
	defer close(r.done)
	for {
		switch m := (<-r.mailbox).(type) {
		case cmdConnect:
			r.handleConnect(m.url)
		case cmdDisconnect:
			r.handleDisconnect()
		case cmdRequestState:
			r.handleRequestState()
		case connOpened:
			r.handleOpened(m)
		case connFailed:
			r.handleFailed(m)
		case connClosed:
			r.handleClosed(m)
		case inboundFrame:
			r.handleFrame(m)
		case pingDue:
			r.handlePing(m)
		case reconnectDue:
			r.handleReconnectDue()
		case cmdShutdown:
			r.teardownConn()
			r.setStatus(StatusDisconnected, "")
			return
		}
	}
}

func (r *Reconciler) handleConnect(url string) {
	if r.status == StatusConnecting || r.status == StatusConnected {
		r.logger.Warn("live_connect_ignored", "status", string(r.status), "url", url)
		return
	}
	r.stopReconnect()
	r.attempts = 0
	r.url = url
	r.startDial()
}

func (r *Reconciler) startDial() {
	connID := "conn_" + uuid.New().String()[:16]
	r.connID = connID
	ctx, cancel := context.WithCancel(context.Background())
	r.dialCancel = cancel
	r.setStatus(StatusConnecting, "")
	r.logger.Info("live_connecting", "url", r.url, "conn_id", connID, "attempt", r.attempts)

	dial, url := r.dial, r.url
	go func() {
		conn, err := dial(ctx, url)
		if err != nil {
			r.post(connFailed{connID: connID, err: err})
			return
		}
		r.post(connOpened{connID: connID, conn: conn})
	}()
}

func (r *Reconciler) handleOpened(m connOpened) {
	if m.connID != r.connID || r.status != StatusConnecting {
		// A dial that lost its race with Disconnect or a newer Connect.
		m.conn.Close()
		return
	}
	if r.dialCancel != nil {
		r.dialCancel()
		r.dialCancel = nil
	}
	r.conn = m.conn
	r.attempts = 0
	_, span := tracer.Start(context.Background(), "live.session",
		trace.WithAttributes(
			attribute.String("mortality.conn_id", m.connID),
			attribute.String("mortality.feed_url", r.url),
		))
	r.sessionSpan = span
	r.setStatus(StatusConnected, "")
	r.logger.Info("live_connected", "url", r.url, "conn_id", m.connID)
	go r.readLoop(m.connID, m.conn)
	r.armPing(m.connID)
}

func (r *Reconciler) handleFailed(m connFailed) {
	if m.connID != r.connID {
		return
	}
	if r.dialCancel != nil {
		r.dialCancel()
		r.dialCancel = nil
	}
	connErr := &event.ConnectionError{URL: r.url, Attempt: r.attempts, Detail: m.err.Error(), Err: m.err}
	r.logger.Warn("live_dial_failed", "url", r.url, "conn_id", m.connID, "error", connErr.Error())
	r.scheduleReconnect(m.err)
}

func (r *Reconciler) handleClosed(m connClosed) {
	if m.connID != r.connID {
		return
	}
	r.stopPing()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	if IsCleanClose(m.err) {
		r.endSpan(nil)
		r.setStatus(StatusDisconnected, "")
		r.logger.Info("live_closed_clean", "conn_id", m.connID)
		return
	}
	r.endSpan(&event.ConnectionError{URL: r.url, Detail: m.err.Error(), Err: m.err})
	r.scheduleReconnect(m.err)
}

// scheduleReconnect arms the next backoff timer, or parks in error once the
// attempt ceiling is hit. Delays double per consecutive failure:
// base, base*2, base*4, ... for attempts 1..max.
func (r *Reconciler) scheduleReconnect(cause error) {
	r.attempts++
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if r.attempts > r.cfg.ReconnectMaxAttempts {
		r.setStatus(StatusError, msg)
		r.logger.Error("reconnect_exhausted", "attempts", r.attempts-1, "error", msg)
		return
	}
	delayMS := int64(r.cfg.ReconnectBaseDelayMS) << (r.attempts - 1)
	observability.RecordReconnectAttempt()
	r.setStatus(StatusError, msg)
	r.logger.Warn("reconnect_scheduled", "attempt", r.attempts, "delay_ms", delayMS, "error", msg)
	r.reconnect = r.clk.AfterFunc(time.Duration(delayMS)*time.Millisecond, func() {
		r.post(reconnectDue{})
	})
}

func (r *Reconciler) handleReconnectDue() {
	// Stale fires arrive when Disconnect or an explicit Connect won the
	// race against the timer.
	if r.status != StatusError || r.conn != nil {
		return
	}
	r.reconnect = nil
	r.startDial()
}

func (r *Reconciler) handleDisconnect() {
	r.teardownConn()
	r.attempts = 0
	r.url = ""
	r.swapState(NewLiveState(r.cfg.RingCapacity))
	r.setStatus(StatusDisconnected, "")
	r.logger.Info("live_disconnected")
}

func (r *Reconciler) handleRequestState() {
	if r.conn == nil {
		r.logger.Warn("request_state_ignored", "status", string(r.status))
		return
	}
	if err := r.conn.WriteJSON(map[string]any{"type": "request_state"}); err != nil {
		r.logger.Warn("request_state_failed", "error", err.Error())
	}
}

// =============================================================================
// FRAME HANDLING
// =============================================================================

func (r *Reconciler) handleFrame(m inboundFrame) {
	if m.connID != r.connID || r.conn == nil {
		return
	}
	p := event.Payload(m.frame)
	switch p.StringDefault("type", "") {
	case "initial_state":
		r.handleInitialState(p)
	case "event":
		r.handleEventFrame(m.frame)
	case "pong":
		r.logger.Debug("live_pong", "conn_id", m.connID)
	default:
		r.logger.Warn("live_unknown_frame", "type", p.StringDefault("type", ""), "conn_id", m.connID)
	}
}

func (r *Reconciler) handleInitialState(p event.Payload) {
	next, window := bootstrapState(p, r.cfg.RingCapacity, r.clk.NowMS)
	for _, e := range window {
		observability.RecordEventIngested("bootstrap", string(e.Kind))
		if e.Malformed() != nil {
			observability.RecordMalformedEvent(string(e.Kind))
		}
	}
	if dropped := next.Ring.Dropped(); dropped > 0 {
		observability.RecordRingDrops(dropped)
	}
	r.swapState(next)
	r.logger.Info("live_initial_state",
		"agents", len(next.Agents), "events", len(window), "timers", len(next.Timers))
}

func (r *Reconciler) handleEventFrame(frame map[string]any) {
	e := event.FromMap(frame, r.clk.NowMS)
	next := r.state.Clone()
	dropped, applyErr := next.applyEvent(e)
	observability.RecordEventIngested("live", string(e.Kind))
	if dropped {
		observability.RecordRingDrops(1)
	}
	if applyErr != nil {
		observability.RecordMalformedEvent(string(e.Kind))
		r.logger.Debug("live_event_degraded", "kind", string(e.Kind), "seq", e.Seq, "error", applyErr.Error())
	}
	r.swapState(next)
}

// bootstrapState builds a fresh LiveState from an initial_state frame:
// profiles, the refolded recent-event window (metrics, diaries, ring,
// elapsed-time origin), then the timer table overlaid as the feed's present
// truth. Returns the state and the refolded window.
func bootstrapState(frame event.Payload, ringCapacity int, nowMS func() int64) (*LiveState, []*event.Event) {
	next := NewLiveState(ringCapacity)

	if agents, ok := frame.Map("agents"); ok {
		for id, v := range agents {
			next.Agents[id] = snapshot.New(id)
			if m, ok := v.(map[string]any); ok {
				next.Profiles[id] = event.DecodeAgentProfile(event.Payload(m), id)
			}
		}
	}

	var window []*event.Event
	if raw, ok := frame["recent_events"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			e := event.FromMap(m, nowMS)
			window = append(window, e)
			next.applyEvent(e)
		}
	}

	if timers, ok := frame.Map("timers"); ok {
		for id, v := range timers {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			info := decodeTimerInfo(id, event.Payload(m))
			next.Timers[id] = info
			snap := next.Agents[id]
			if snap == nil {
				snap = snapshot.New(id)
				next.Agents[id] = snap
			}
			overlayTimer(snap, info)
		}
	}

	return next, window
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// readLoop pumps frames from one connection into the mailbox until the
// transport errors out. The error, clean or not, is posted as connClosed.
func (r *Reconciler) readLoop(connID string, conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			r.post(connClosed{connID: connID, err: err})
			return
		}
		r.post(inboundFrame{connID: connID, frame: frame})
	}
}

func (r *Reconciler) armPing(connID string) {
	if r.cfg.PingIntervalMS <= 0 {
		return
	}
	d := time.Duration(r.cfg.PingIntervalMS) * time.Millisecond
	r.ping = r.clk.AfterFunc(d, func() {
		r.post(pingDue{connID: connID})
	})
}

func (r *Reconciler) handlePing(m pingDue) {
	if m.connID != r.connID || r.conn == nil {
		return
	}
	if err := r.conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		// The read loop surfaces the close; nothing to do here.
		r.logger.Warn("live_ping_failed", "conn_id", m.connID, "error", err.Error())
	}
	r.armPing(m.connID)
}

// teardownConn releases every connection-scoped resource: heartbeat timer,
// reconnect timer, in-flight dial, the socket, and the session span. Every
// exit path runs it exactly once per connection.
func (r *Reconciler) teardownConn() {
	r.stopPing()
	r.stopReconnect()
	if r.dialCancel != nil {
		r.dialCancel()
		r.dialCancel = nil
	}
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.endSpan(nil)
	r.connID = ""
}

func (r *Reconciler) stopPing() {
	if r.ping != nil {
		r.ping.Stop()
		r.ping = nil
	}
}

func (r *Reconciler) stopReconnect() {
	if r.reconnect != nil {
		r.reconnect.Stop()
		r.reconnect = nil
	}
}

func (r *Reconciler) endSpan(cause error) {
	if r.sessionSpan == nil {
		return
	}
	if cause != nil {
		r.sessionSpan.RecordError(cause)
		r.sessionSpan.SetStatus(codes.Error, cause.Error())
	} else {
		r.sessionSpan.SetStatus(codes.Ok, "closed")
	}
	r.sessionSpan.End()
	r.sessionSpan = nil
}

func (r *Reconciler) swapState(next *LiveState) {
	r.mu.Lock()
	r.state = next
	r.mu.Unlock()
	r.publish()
}

func (r *Reconciler) setStatus(st SocketStatus, lastError string) {
	r.mu.Lock()
	changed := r.status != st || r.lastError != lastError
	r.status = st
	r.lastError = lastError
	r.mu.Unlock()
	observability.RecordLiveStatus(string(st))
	if changed {
		r.publish()
	}
}

func (r *Reconciler) publish() {
	r.mu.Lock()
	update := Update{Status: r.status, LastError: r.lastError, State: r.state}
	subs := make([]func(Update), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(update)
	}
}
