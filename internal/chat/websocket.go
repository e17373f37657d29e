package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// envelope frames every event on the wire in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketHandler upgrades chat connections and feeds events to the gateway.
type WebSocketHandler struct {
	gateway       *Gateway
	manager       *Manager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(gateway *Gateway, manager *Manager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		gateway:       gateway,
		manager:       manager,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsEmitter adapts a websocket connection to the gateway's Emitter.
// A mutex serializes writes; the websocket library allows only one
// concurrent writer per connection.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.Write(ctx, websocket.MessageText, frame)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	connID := uuid.NewString()
	slog.Info("Chat client connected", "conn_id", connID, "ip", r.RemoteAddr)

	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
		}
	}()

	h.manager.Register(connID, ws)
	defer h.manager.Unregister(connID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, connID)
	slog.Info("Chat client disconnected", "conn_id", connID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
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

// readLoop processes inbound events strictly in arrival order: one event is
// fully handled (effects applied, replies emitted) before the next is read.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	emitter := &wsEmitter{conn: ws}

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "conn_id", connID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("Malformed chat frame", "conn_id", connID, "error", err)
			continue
		}

		switch env.Event {
		case EventClientReady:
			var payload ClientReady
			if len(env.Data) > 0 {
				if err := json.Unmarshal(env.Data, &payload); err != nil {
					slog.Warn("Malformed client_ready payload", "conn_id", connID, "error", err)
					continue
				}
			}
			h.gateway.HandleReady(ctx, emitter, payload)

		case EventClientMessage:
			var payload ClientMessage
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				slog.Warn("Malformed client_message payload", "conn_id", connID, "error", err)
				continue
			}
			h.gateway.HandleMessage(ctx, emitter, payload)

		default:
			slog.Debug("Unknown chat event", "conn_id", connID, "event", env.Event)
		}
	}
}
