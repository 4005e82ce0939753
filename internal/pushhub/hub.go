package pushhub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lineform/scraper/internal/domain"
)

// Hub fans PushMessages out to every client currently subscribed to the
// message's topic. Register/unregister are handed to the hub's own
// goroutine over unbuffered channels, so each call blocks until Run
// receives it, matching the pack's hub/client split.
type Hub struct {
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*Client]struct{}

	registerCh   chan *Client
	unregisterCh chan *Client
	publish      chan domain.PushMessage
}

// NewHub constructs an idle hub; call Run to start its loop.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:       logger,
		clients:      make(map[*Client]struct{}),
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		publish:      make(chan domain.PushMessage, 1000),
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("push hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.registerCh:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()
		case c := <-h.unregisterCh:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.clientsMu.Unlock()
		case msg := <-h.publish:
			h.deliver(msg)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.registerCh <- c }

// unregister satisfies the unregisterer interface Client depends on.
func (h *Hub) unregister(c *Client) { h.unregisterCh <- c }

// Publish enqueues msg for fan-out, dropping it if the hub's internal
// publish buffer (independent of per-client queues) is saturated.
func (h *Hub) Publish(msg domain.PushMessage) {
	select {
	case h.publish <- msg:
	default:
		h.logger.Warn("push hub publish buffer full, dropping message", "topic", msg.Topic)
	}
}

func (h *Hub) deliver(msg domain.PushMessage) {
	h.clientsMu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.Subscribed(msg.Topic) {
			recipients = append(recipients, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range recipients {
		c.TrySend(msg)
	}
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.logger.Info("push hub stopped")
}
