package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// =============================================================================
// SOCKET PROTOCOL
// =============================================================================

// Conn is the transport protocol the reconciler drives. Production uses the
// websocket implementation below; tests substitute scripted fakes.
type Conn interface {
	// ReadFrame blocks for the next JSON text frame.
	ReadFrame() (map[string]any, error)
	// WriteJSON sends one JSON text frame.
	WriteJSON(v any) error
	// Close tears the transport down. Safe to call concurrently with reads.
	Close() error
}

// Dialer opens a Conn to a feed URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer returns the production dialer.
func WebsocketDialer() Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial live feed %s: %w", url, err)
		}
		return &wsConn{ws: ws}, nil
	}
}

type wsConn struct {
	ws *websocket.Conn

	// The websocket supports one concurrent writer; heartbeat and command
	// writes serialize here.
	writeMu sync.Mutex
}

func (c *wsConn) ReadFrame() (map[string]any, error) {
	var frame map[string]any
	if err := c.ws.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

var _ Conn = (*wsConn)(nil)

// IsCleanClose reports whether a read error represents an orderly shutdown
// by the peer. Clean closes end the session without retry; anything else
// enters the reconnect path.
func IsCleanClose(err error) bool {
	if err == nil {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
