// Package ws implements the WebSocket adapter streaming run events to
// clients in generation order.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/gatehouse-io/gatehouse/internal/domain/event"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. runID filters the stream to one
// run; empty means the firehose.
type conn struct {
	ws     *websocket.Conn
	runID  string
	cancel context.CancelFunc

	// writeMu serializes writes so per-run ordering survives concurrent
	// broadcasts.
	writeMu sync.Mutex
}

// Hub manages all active WebSocket connections and fans run events out to
// their subscribers.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the connection to WebSocket. An optional run_id query
// parameter subscribes the client to a single run's stream.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The connection outlives the HTTP handler: net/http cancels r.Context()
	// when HandleWS returns, so the read loop runs on its own context.
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, runID: r.URL.Query().Get("run_id"), cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "run_id", c.runID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// BroadcastRunEvent sends a run event to every subscriber of that run and to
// firehose connections.
func (h *Hub) BroadcastRunEvent(ctx context.Context, ev *event.RunEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}
	msg, err := json.Marshal(Message{Type: string(ev.Type), Payload: data})
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.runID != "" && c.runID != ev.RunID {
			continue
		}
		c.writeMu.Lock()
		err := c.ws.Write(ctx, websocket.MessageText, msg)
		c.writeMu.Unlock()
		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
