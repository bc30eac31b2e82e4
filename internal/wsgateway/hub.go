package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/tick-averager/internal/config"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	messagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_average_messages_sent_total",
			Help: "Total number of average messages queued to WebSocket clients",
		},
	)

	messagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_average_messages_dropped_total",
			Help: "Total number of average messages dropped for slow clients",
		},
	)
)

// Hub manages WebSocket connections and fans averages out to subscribers
type Hub struct {
	config   config.WSGatewayConfig
	registry *ConnectionRegistry
	known    func(string) bool
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stats    HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64     `json:"connections_total"`
	ConnectionsActive int64     `json:"connections_active"`
	AveragesReceived  int64     `json:"averages_received"`
	MessagesSent      int64     `json:"messages_sent"`
	MessagesDropped   int64     `json:"messages_dropped"`
	LastAverageTime   time.Time `json:"last_average_time"`
	mu                sync.RWMutex
}

// NewHub creates a new WebSocket hub.
// calculators lists the names clients may subscribe to; empty accepts any name.
func NewHub(cfg config.WSGatewayConfig, calculators []string) *Hub {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	var known func(string) bool
	if len(calculators) > 0 {
		names := make(map[string]bool, len(calculators))
		for _, name := range calculators {
			names[name] = true
		}
		known = func(name string) bool { return names[name] }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   cfg,
		registry: NewConnectionRegistry(),
		known:    known,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the connection health monitor
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting WebSocket hub",
		logger.Duration("ping_interval", h.config.PingInterval),
		logger.Int("max_connections", h.config.MaxConnections),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop closes every connection and waits for the pumps to exit
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()
	for _, conn := range h.registry.GetAll() {
		h.Unregister(conn)
	}
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// Register registers a new connection and starts its pumps
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	connectionsActive.Inc()

	h.stats.mu.Lock()
	h.stats.ConnectionsTotal++
	h.stats.mu.Unlock()

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("user_connections", len(h.registry.GetByUser(conn.UserID))),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister removes and closes a connection; repeated calls are no-ops
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	connectionsActive.Dec()
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// OnAverage fans a computed average out to subscribed connections.
// It never blocks: slow clients with a full buffer miss the update.
func (h *Hub) OnAverage(name string, value decimal.Decimal) {
	update := AverageUpdate{
		Calculator: name,
		Value:      value,
		EmittedAt:  h.now().UTC(),
	}

	data, err := json.Marshal(ServerMessage{Type: MessageTypeAverage, Data: update})
	if err != nil {
		logger.Error("Failed to marshal average update", logger.ErrorField(err))
		return
	}

	sent, dropped := 0, 0
	for _, conn := range h.registry.Subscribers(name) {
		if err := conn.Enqueue(data); err != nil {
			dropped++
			if errors.Is(err, ErrSendBufferFull) {
				logger.Debug("Dropping average for slow connection",
					logger.String("connection_id", conn.ID),
					logger.String("calculator", name),
				)
			}
			continue
		}
		sent++
	}

	messagesSent.Add(float64(sent))
	messagesDropped.Add(float64(dropped))

	h.stats.mu.Lock()
	h.stats.AveragesReceived++
	h.stats.MessagesSent += int64(sent)
	h.stats.MessagesDropped += int64(dropped)
	h.stats.LastAverageTime = update.EmittedAt
	h.stats.mu.Unlock()
}

// writePump is the only writer of conn.Conn
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-conn.Done():
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))

			w, err := conn.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current frame, one JSON document per line
			n := len(conn.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-conn.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client messages until the connection fails
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		return conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&clientMsg, h.known); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.removeStale(time.Now())
		}
	}
}

// removeStale unregisters connections idle for more than twice the read timeout
func (h *Hub) removeStale(now time.Time) int {
	staleThreshold := h.config.ReadTimeout * 2
	removed := 0

	for _, conn := range h.registry.GetAll() {
		idle := now.Sub(conn.GetLastPong())
		if idle > staleThreshold {
			logger.Info("Removing stale connection",
				logger.String("connection_id", conn.ID),
				logger.String("user_id", conn.UserID),
				logger.Duration("idle_time", idle),
			)
			h.Unregister(conn)
			removed++
		}
	}
	return removed
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		ConnectionsTotal:  h.stats.ConnectionsTotal,
		ConnectionsActive: int64(h.registry.Count()),
		AveragesReceived:  h.stats.AveragesReceived,
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		LastAverageTime:   h.stats.LastAverageTime,
	}
}
