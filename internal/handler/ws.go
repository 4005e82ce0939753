package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lineform/scraper/internal/pushhub"
)

// WSHandler upgrades GET /ws to a push hub subscriber connection.
type WSHandler struct {
	hub      *pushhub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler constructs the handler. allowedOrigins controls
// CheckOrigin the same way the rest of the API honors CORSAllowedOrigins;
// "*" disables the check entirely.
func NewWSHandler(hub *pushhub.Hub, allowedOrigins string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigins == "*" || r.Header.Get("Origin") == allowedOrigins
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and runs its read/write pumps until
// the client disconnects or the server shuts down.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := pushhub.NewClient(uuid.New().String(), conn, h.hub, h.logger)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
