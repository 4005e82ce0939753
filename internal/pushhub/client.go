// Package pushhub implements the server push channel behind GET /ws:
// a gorilla/websocket hub fanning scrape_progress and odds_updates
// messages out to subscribers, generalised from the pack's single-topic
// broadcast hub to a closed two-topic subscribe/unsubscribe model.
package pushhub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lineform/scraper/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

// unregisterer is the narrow hub capability a Client needs, so it can be
// constructed and tested without a full Hub.
type unregisterer interface {
	unregister(*Client)
}

// Client is one subscriber connection. Its outbound queue is bounded at
// sendBufferSize; a full queue drops the message rather than closing the
// connection, per the push channel's best-effort delivery contract.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan domain.PushMessage
	hub    unregisterer
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[domain.Topic]struct{}

	dropped int64
}

// NewClient wraps an upgraded websocket connection as a hub subscriber.
func NewClient(id string, conn *websocket.Conn, hub unregisterer, logger *slog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan domain.PushMessage, sendBufferSize),
		hub:    hub,
		logger: logger,
		topics: make(map[domain.Topic]struct{}),
	}
}

// Subscribed reports whether the client currently subscribes to topic.
func (c *Client) Subscribed(topic domain.Topic) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// Subscribe adds topic to the client's subscription set. Idempotent.
func (c *Client) Subscribe(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = struct{}{}
}

// Unsubscribe removes topic from the client's subscription set. Idempotent.
func (c *Client) Unsubscribe(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// TrySend enqueues msg for delivery without blocking. Returns false and
// increments the drop counter if the client's queue is full.
func (c *Client) TrySend(msg domain.PushMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return false
	}
}

// ReadPump reads subscribe/unsubscribe control frames from the client
// until the connection closes or ctx is cancelled.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame controlFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("push client unexpected close", "client_id", c.id, "error", err)
			}
			return
		}
		c.handleControlFrame(frame)
	}
}

// controlFrame is the subscribe/unsubscribe message a client sends.
type controlFrame struct {
	Type   string         `json:"type"`
	Topics []domain.Topic `json:"topics"`
}

func (c *Client) handleControlFrame(f controlFrame) {
	for _, topic := range f.Topics {
		if !domain.ValidTopic(topic) {
			continue
		}
		switch f.Type {
		case "subscribe":
			c.Subscribe(topic)
		case "unsubscribe":
			c.Unsubscribe(topic)
		}
	}
}

// WritePump delivers queued messages to the client and sends periodic
// pings, until ctx is cancelled or the hub closes the send channel.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("push client write error", "client_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
