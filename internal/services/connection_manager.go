package services

import (
	"log"
	"sync"

	"heartline/internal/models"
)

// ConnectionManager manages all active WebSocket connections
type ConnectionManager struct {
	connections map[string]*models.UserConnection
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.UserConnection),
	}
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *models.UserConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	log.Printf("✅ [WS] Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove closes the connection's write channel and forgets it
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		conn.MarkClosed()
		close(conn.WriteChan)
		delete(cm.connections, connID)
		log.Printf("❌ [WS] Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// ForIdentity returns every open connection bound to an identity key
func (cm *ConnectionManager) ForIdentity(key string) []*models.UserConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var conns []*models.UserConnection
	for _, conn := range cm.connections {
		if conn.Identity.Key == key {
			conns = append(conns, conn)
		}
	}
	return conns
}
