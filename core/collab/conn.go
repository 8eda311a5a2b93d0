package collab

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the explicit connection lifecycle:
// idle -> connecting -> connected -> backoff -> connecting, capped.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateFailed // attempt cap exhausted, manual resume only
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn is one duplex message connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport dials the session channel. The default is a gorilla
// websocket dialer; tests substitute an in-memory pipe.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMsgSize = 64 * 1024
)

// wsConn adapts *websocket.Conn to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// wsTransport is the production Transport.
type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebsocketTransport returns the default channel transport.
func NewWebsocketTransport() Transport {
	return &wsTransport{dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsConn{conn: conn}, nil
}

// backoffDelay is the linear reconnect schedule: attempt n (1-based)
// waits n * base. Monotonically non-decreasing in the attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * base
}
