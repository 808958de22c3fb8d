// Package testutil provides shared fixtures and fakes for engine tests.
//
// Everything here is deterministic: the capture logger records instead of
// printing, builders assemble wire-shaped documents, and the feed server is
// an in-process websocket endpoint tests drive frame by frame.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// CAPTURE LOGGER
// =============================================================================

// CaptureLogger implements event.Logger and records every entry.
type CaptureLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewCaptureLogger creates a CaptureLogger.
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{Logs: make([]LogEntry, 0)}
}

func (c *CaptureLogger) Debug(msg string, keysAndValues ...any) {
	c.log("debug", msg, keysAndValues...)
}

func (c *CaptureLogger) Info(msg string, keysAndValues ...any) {
	c.log("info", msg, keysAndValues...)
}

func (c *CaptureLogger) Warn(msg string, keysAndValues ...any) {
	c.log("warn", msg, keysAndValues...)
}

func (c *CaptureLogger) Error(msg string, keysAndValues ...any) {
	c.log("error", msg, keysAndValues...)
}

func (c *CaptureLogger) log(level, msg string, keysAndValues ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	c.Logs = append(c.Logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

// GetLogs returns captured logs (thread-safe).
func (c *CaptureLogger) GetLogs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]LogEntry, len(c.Logs))
	copy(copied, c.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (c *CaptureLogger) HasLog(level, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.Logs {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (c *CaptureLogger) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logs = nil
}

var _ event.Logger = (*CaptureLogger)(nil)

// =============================================================================
// WIRE DOCUMENT BUILDERS
// =============================================================================

// BundleBuilder assembles raw archival bundles in wire shape for tests.
type BundleBuilder struct {
	raw map[string]any
}

// NewBundleBuilder creates a builder with a minimal valid envelope.
func NewBundleBuilder() *BundleBuilder {
	return &BundleBuilder{raw: map[string]any{
		"bundle_type":    "mortality/ui#events",
		"schema_version": 1,
		"exported_at":    "2024-01-01T12:00:00Z",
		"events":         []any{},
	}}
}

// WithExperiment sets the experiment descriptor.
func (b *BundleBuilder) WithExperiment(slug, description string) *BundleBuilder {
	b.raw["experiment"] = map[string]any{"slug": slug, "description": description}
	return b
}

// WithAgent adds an agent profile keyed by id.
func (b *BundleBuilder) WithAgent(id string, profile map[string]any) *BundleBuilder {
	agents, _ := b.raw["agents"].(map[string]any)
	if agents == nil {
		agents = map[string]any{}
		b.raw["agents"] = agents
	}
	agents[id] = profile
	return b
}

// WithEvent appends one event in wire shape.
func (b *BundleBuilder) WithEvent(seq int64, kind, ts string, payload map[string]any) *BundleBuilder {
	events, _ := b.raw["events"].([]any)
	b.raw["events"] = append(events, map[string]any{
		"seq":     seq,
		"event":   kind,
		"ts":      ts,
		"payload": payload,
	})
	return b
}

// WithDiary appends diary entries for an agent.
func (b *BundleBuilder) WithDiary(agentID string, entries ...map[string]any) *BundleBuilder {
	diaries, _ := b.raw["diaries"].(map[string]any)
	if diaries == nil {
		diaries = map[string]any{}
		b.raw["diaries"] = diaries
	}
	existing, _ := diaries[agentID].([]any)
	for _, e := range entries {
		existing = append(existing, e)
	}
	diaries[agentID] = existing
	return b
}

// WithMetadata sets one metadata key.
func (b *BundleBuilder) WithMetadata(key string, value any) *BundleBuilder {
	metadata, _ := b.raw["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
		b.raw["metadata"] = metadata
	}
	metadata[key] = value
	return b
}

// Build returns the assembled raw document.
func (b *BundleBuilder) Build() map[string]any {
	return b.raw
}

// EventFrame builds a live-protocol event frame.
func EventFrame(seq int64, kind, ts string, payload map[string]any) map[string]any {
	return map[string]any{
		"type":    "event",
		"seq":     seq,
		"event":   kind,
		"ts":      ts,
		"payload": payload,
	}
}

// InitialStateFrame builds a live-protocol initial_state frame.
func InitialStateFrame(agents, timers map[string]any, recentEvents []any) map[string]any {
	frame := map[string]any{"type": "initial_state"}
	if agents != nil {
		frame["agents"] = agents
	}
	if timers != nil {
		frame["timers"] = timers
	}
	if recentEvents != nil {
		frame["recent_events"] = recentEvents
	}
	return frame
}

// =============================================================================
// FEED SERVER
// =============================================================================

// FeedServer is an in-process websocket feed for reconciler tests. Tests
// accept connections with WaitForConn and push frames through them; inbound
// client frames are recorded, and pings are answered with pongs the way the
// real feed behaves.
type FeedServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []map[string]any

	connCh chan *FeedConn
}

// FeedConn is one accepted client connection.
type FeedConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewFeedServer starts the server. Callers must Close it.
func NewFeedServer() *FeedServer {
	f := &FeedServer{connCh: make(chan *FeedConn, 8)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the ws:// address clients dial.
func (f *FeedServer) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

// WaitForConn blocks until a client connects.
func (f *FeedServer) WaitForConn(timeout time.Duration) (*FeedConn, error) {
	select {
	case c := <-f.connCh:
		return c, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no client connected within %s", timeout)
	}
}

// Received returns every frame clients have sent (thread-safe).
func (f *FeedServer) Received() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := make([]map[string]any, len(f.received))
	copy(copied, f.received)
	return copied
}

// HasReceived checks whether any client frame carried the given type.
func (f *FeedServer) HasReceived(frameType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, frame := range f.received {
		if t, _ := frame["type"].(string); t == frameType {
			return true
		}
	}
	return false
}

// Close shuts the server down, dropping all connections abruptly.
func (f *FeedServer) Close() {
	f.server.Close()
}

func (f *FeedServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &FeedConn{ws: ws}
	f.connCh <- conn

	for {
		var frame map[string]any
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, frame)
		f.mu.Unlock()

		if t, _ := frame["type"].(string); t == "ping" {
			_ = conn.SendJSON(map[string]any{"type": "pong"})
		}
	}
}

// SendJSON pushes one frame to the client.
func (c *FeedConn) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// CloseClean performs an orderly websocket shutdown (close code 1000).
func (c *FeedConn) CloseClean() error {
	c.writeMu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	return c.ws.Close()
}

// CloseAbrupt kills the connection without a close handshake, so the client
// observes an unclean failure.
func (c *FeedConn) CloseAbrupt() error {
	return c.ws.UnderlyingConn().Close()
}
