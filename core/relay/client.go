package relay

import (
	"context"
	"encoding/json"
	"time"

	"comproom/core/proto"
	"comproom/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection inside the relay.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	ProjectID string
	UserID    string
	Username  string
	Role      string

	// closed marks Send as closed. Owned by the hub; guarded by the
	// hub mutex so off-loop senders cannot race the close.
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, projectID string) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		ProjectID: projectID,
	}
}

// ReadPump reads messages until the connection drops, handing each to
// the handler. Malformed frames are logged and skipped.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *proto.Message)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("relay read error",
						logger.ErrorField(err),
						logger.String("project", c.ProjectID),
						logger.String("user", c.UserID))
				}
				return
			}
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))

			var msg proto.Message
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("relay invalid message",
					logger.ErrorField(err),
					logger.String("project", c.ProjectID))
				continue
			}
			handler(ctx, c, &msg)
		}
	}
}

// WritePump drains the send channel and keeps the connection alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
