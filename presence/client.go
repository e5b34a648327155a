/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package presence

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	conn      *websocket.Conn
	origin    string
	sessionID string
	cancel    context.CancelFunc

	// mu serializes writes; gorilla connections allow one writer at a time.
	mu   sync.Mutex
	once sync.Once
}

func (c *client) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteJSON(ev)
}

// readPump drains and discards client frames. The channel is push-only, but
// reading is how close frames and dead peers are noticed.
func (c *client) readPump() {
	defer c.cancel()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	_ = c.conn.Close()
}
