package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liveexchange/auction-backend/internal/metrics"
)

// Client is one live connection. UserID is uuid.Nil for anonymous,
// subscribe-only connections.
type Client struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	remoteAddr string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// rooms is owned by the hub and guarded by the hub's mutex.
	rooms map[string]bool
}

// readPump consumes client frames until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.ID, "error", err)
			}
			return
		}
		c.hub.handleMessage(c, &msg)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame for delivery; a full buffer drops the frame
// rather than blocking the publisher.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		metrics.EventsDropped.Inc()
		c.hub.logger.Warn("client send buffer full, dropping event", "client_id", c.ID)
	}
}

func (c *Client) sendMessage(msg *ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", "error", err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) sendError(text string) {
	c.sendMessage(&ServerMessage{
		Type:      "error",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"message": text},
	})
}
