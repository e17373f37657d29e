// Package chat provides the realtime chat channel: the WebSocket transport,
// the connection registry, and the session gateway that drives the
// conversation engine.
package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Manager tracks active WebSocket connections by connection ID. Duplicate
// tabs for the same user each get their own connection; the registry makes
// no attempt to serialize them (see the gateway's known-race note).
type Manager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{
		active: make(map[string]*websocket.Conn),
	}
}

// Register adds a connection under its connection ID.
func (m *Manager) Register(connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[connID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	m.active[connID] = conn
	slog.Info("Chat connection registered", "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (m *Manager) Unregister(connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[connID]; exists && current == conn {
		delete(m.active, connID)
		slog.Info("Chat connection unregistered", "conn_id", connID)
	}
}

// Count returns the number of active connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll terminates every active connection, used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, id)
		slog.Info("Chat connection closed", "conn_id", id)
	}
}
