package wsgateway

import (
	"sync"
)

// ConnectionRegistry tracks live connections by ID
type ConnectionRegistry struct {
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewConnectionRegistry creates a new connection registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
	}
}

// Add adds a connection, replacing any with the same ID
func (r *ConnectionRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID] = conn
}

// Remove removes a connection and reports whether it was present.
// Exactly one concurrent caller observes true, which makes it the owner of cleanup.
func (r *ConnectionRegistry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connectionID]; !exists {
		return false
	}
	delete(r.connections, connectionID)
	return true
}

// Get retrieves a connection by ID
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// GetAll returns a snapshot of every connection
func (r *ConnectionRegistry) GetAll() []*Connection {
	return r.filter(nil)
}

// GetByUser returns the connections of one user
func (r *ConnectionRegistry) GetByUser(userID string) []*Connection {
	return r.filter(func(c *Connection) bool { return c.UserID == userID })
}

// Subscribers returns the connections that receive averages from calculator
func (r *ConnectionRegistry) Subscribers(calculator string) []*Connection {
	return r.filter(func(c *Connection) bool { return c.ShouldReceive(calculator) })
}

// Count returns the total number of connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *ConnectionRegistry) filter(keep func(*Connection) bool) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		if keep == nil || keep(conn) {
			out = append(out, conn)
		}
	}
	return out
}
