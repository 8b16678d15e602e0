package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Client is one live authenticated connection.
type Client struct {
	conn     *websocket.Conn
	UserID   string
	Username string
	Send     chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		conn:     conn,
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, 256),
	}
}

// Enqueue hands a frame to the write pump without blocking; a slow consumer
// drops frames rather than stalling the sender.
func (c *Client) Enqueue(b []byte) {
	select {
	case c.Send <- b:
	default:
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		close(c.Send)
		_ = c.conn.Close()
		c.closed = true
	}
	c.mu.Unlock()
}

// WritePump drains the send channel onto the socket and keeps the connection
// alive with pings. It owns all writes to the underlying conn.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.Send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
