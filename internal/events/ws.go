package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// WSHandler streams hub events to WebSocket clients. The stream is
// one-way: recent history is replayed on connect, then live events
// follow until the client disconnects.
type WSHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWSHandler creates a WebSocket event stream handler.
func NewWSHandler(hub *Hub, allowedOrigin string, isDev bool) *WSHandler {
	return &WSHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// No client input protocol; CloseRead keeps the connection alive and
	// cancels the context when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	for _, e := range h.hub.History() {
		if err := h.writeJSON(ctx, ws, e); err != nil {
			slog.Debug("Event replay write failed", "error", err)
			return
		}
	}

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	slog.Info("Event stream connected", "ip", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := h.writeJSON(ctx, ws, e); err != nil {
				slog.Debug("Event stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WSHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
