package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
)

// Client wraps one authenticated websocket connection. The user id is bound
// at the handshake and is the only source of sender identity for every event
// the connection emits.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// UserID returns the principal id bound at authentication time.
func (c *Client) UserID() string {
	return c.userID
}

// enqueue queues payload for delivery. It reports false when the connection
// is closed or the client is too slow to drain its buffer.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears down the connection and all of its room subscriptions. Safe to
// call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.hub.LeaveAll(c)
		close(c.done)
		_ = c.conn.Close()
	})
}

// ReadPump consumes inbound events until the connection drops and hands each
// one to the dispatcher. It must run on its own goroutine.
func (c *Client) ReadPump(dispatcher *Dispatcher) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		dispatcher.Handle(context.Background(), c, payload)
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings.
// It must run on its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
