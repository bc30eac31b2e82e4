package wsgateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSendBufferFull is returned when a slow client's buffer is full
	ErrSendBufferFull = errors.New("send buffer is full")
	// ErrConnectionClosed is returned when sending on a closed connection
	ErrConnectionClosed = errors.New("connection is closed")
)

// Connection represents a WebSocket connection with a client.
// Only the hub's write pump writes to Conn; everything else goes through Enqueue.
type Connection struct {
	ID            string
	UserID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[string]bool // calculator -> subscribed
	mu            sync.RWMutex
	done          chan struct{}
	closeOnce     sync.Once
	lastPong      time.Time
	createdAt     time.Time
}

// NewConnection creates a new WebSocket connection
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	now := time.Now()
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Subscriptions: make(map[string]bool),
		done:          make(chan struct{}),
		createdAt:     now,
		lastPong:      now,
	}
}

// Subscribe subscribes to averages of a calculator
func (c *Connection) Subscribe(calculator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[calculator] = true
}

// Unsubscribe unsubscribes from averages of a calculator
func (c *Connection) Unsubscribe(calculator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, calculator)
}

// IsSubscribed checks if the connection is explicitly subscribed to a calculator
func (c *Connection) IsSubscribed(calculator string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[calculator]
}

// ShouldReceive reports whether an average from calculator is delivered.
// A connection with no subscriptions receives every calculator.
func (c *Connection) ShouldReceive(calculator string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Subscriptions) == 0 {
		return true
	}
	return c.Subscriptions[calculator]
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Enqueue queues data for the write pump without blocking
func (c *Connection) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Done is closed when the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection; it is safe to call more than once
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
