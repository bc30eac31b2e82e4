package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
)

var (
	// ErrWebSocketNotConnected is returned when operations are attempted on a disconnected WebSocket
	ErrWebSocketNotConnected = errors.New("websocket is not connected")
	// ErrWebSocketAlreadyConnected is returned when attempting to connect an already connected WebSocket
	ErrWebSocketAlreadyConnected = errors.New("websocket is already connected")
)

// WebSocketState represents the connection state
type WebSocketState int

const (
	StateDisconnected WebSocketState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s WebSocketState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// WebSocketConfig holds configuration for WebSocket connections
type WebSocketConfig struct {
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	PingPeriod           time.Duration
	PongWait             time.Duration
	MaxReconnectAttempts int // 0 means unlimited
	BufferSize           int
}

// DefaultWebSocketConfig returns a default WebSocket configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:                  url,
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		PingPeriod:           54 * time.Second, // Should be less than PongWait
		PongWait:             60 * time.Second,
		MaxReconnectAttempts: 0,
		BufferSize:           100,
	}
}

// WebSocketClient is a WebSocket client with automatic reconnection
type WebSocketClient struct {
	config            WebSocketConfig
	conn              *websocket.Conn
	state             WebSocketState
	mu                sync.RWMutex
	writeMu           sync.Mutex
	reconnectAttempts int
	lastError         error
	started           bool

	messageChan chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketClient creates a new WebSocket client
func NewWebSocketClient(config WebSocketConfig) *WebSocketClient {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketClient{
		config:      config,
		state:       StateDisconnected,
		messageChan: make(chan []byte, config.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect starts the connection loop; reconnection happens in the background
func (w *WebSocketClient) Connect() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrWebSocketAlreadyConnected
	}
	w.started = true
	w.state = StateConnecting
	w.mu.Unlock()

	w.wg.Add(1)
	go w.connectLoop()

	return nil
}

// connectLoop handles connection and reconnection logic
func (w *WebSocketClient) connectLoop() {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}

		conn, err := w.dial()
		if err == nil {
			w.readLoop(conn)
		} else {
			w.mu.Lock()
			w.lastError = err
			w.state = StateDisconnected
			w.mu.Unlock()
			logger.Warn("WebSocket connection failed",
				logger.String("url", w.config.URL),
				logger.ErrorField(err),
			)
		}

		if w.ctx.Err() != nil {
			return
		}

		w.mu.RLock()
		attempts := w.reconnectAttempts
		w.mu.RUnlock()

		if w.config.MaxReconnectAttempts > 0 && attempts >= w.config.MaxReconnectAttempts {
			logger.Error("Max reconnection attempts reached, stopping",
				logger.Int("attempts", attempts),
				logger.Int("max", w.config.MaxReconnectAttempts),
			)
			return
		}

		delay := w.calculateBackoff()
		logger.Info("Reconnecting WebSocket",
			logger.String("url", w.config.URL),
			logger.Duration("delay", delay),
			logger.Int("attempt", attempts+1),
		)

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(delay):
			w.mu.Lock()
			w.state = StateReconnecting
			w.reconnectAttempts++
			w.mu.Unlock()
		}
	}
}

// dial establishes a WebSocket connection
func (w *WebSocketClient) dial() (*websocket.Conn, error) {
	logger.Info("Connecting to WebSocket", logger.String("url", w.config.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: w.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(w.ctx, w.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	})

	w.mu.Lock()
	w.conn = conn
	w.state = StateConnected
	w.reconnectAttempts = 0
	w.lastError = nil
	w.mu.Unlock()

	logger.Info("WebSocket connected", logger.String("url", w.config.URL))
	return conn, nil
}

// calculateBackoff calculates exponential backoff delay
func (w *WebSocketClient) calculateBackoff() time.Duration {
	w.mu.RLock()
	attempts := w.reconnectAttempts
	w.mu.RUnlock()

	// Exponential backoff: baseDelay * 2^attempts
	delay := w.config.ReconnectDelay * time.Duration(1<<uint(attempts))
	if delay <= 0 || delay > w.config.MaxReconnectDelay {
		delay = w.config.MaxReconnectDelay
	}
	return delay
}

// readLoop reads messages until the connection fails or the client is closed
func (w *WebSocketClient) readLoop(conn *websocket.Conn) {
	pingDone := make(chan struct{})
	w.wg.Add(1)
	go w.pingLoop(conn, pingDone)

	defer func() {
		close(pingDone)
		conn.Close()
		w.mu.Lock()
		if w.conn == conn {
			w.conn = nil
		}
		w.state = StateDisconnected
		w.mu.Unlock()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket read error", logger.ErrorField(err))
			}
			w.mu.Lock()
			w.lastError = err
			w.mu.Unlock()
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messageChan <- message:
		case <-w.ctx.Done():
			return
		}
	}
}

// pingLoop keeps the connection alive
func (w *WebSocketClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(w.config.WriteTimeout)); err != nil {
				logger.Warn("Failed to send ping", logger.ErrorField(err))
				conn.Close()
				return
			}
		}
	}
}

// SendMessage sends a text message through the WebSocket
func (w *WebSocketClient) SendMessage(message []byte) error {
	w.mu.RLock()
	conn := w.conn
	state := w.state
	w.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrWebSocketNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, message)
}

// Messages returns the channel of received messages
func (w *WebSocketClient) Messages() <-chan []byte {
	return w.messageChan
}

// GetState returns the current connection state
func (w *WebSocketClient) GetState() WebSocketState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// IsConnected returns whether the WebSocket is connected
func (w *WebSocketClient) IsConnected() bool {
	return w.GetState() == StateConnected
}

// GetLastError returns the last error that occurred
func (w *WebSocketClient) GetLastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

// Close closes the WebSocket connection and stops reconnection attempts
func (w *WebSocketClient) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.state = StateDisconnected
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

// WebSocketProvider reads JSON ticks from an upstream WebSocket feed
type WebSocketProvider struct {
	config     ProviderConfig
	client     *WebSocketClient
	normalizer Normalizer
	tickChan   chan *models.Tick
	connected  bool
	mu         sync.RWMutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewWebSocketProvider creates a provider for config.URL
func NewWebSocketProvider(config ProviderConfig) (Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("websocket provider requires a URL")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}

	wsConfig := DefaultWebSocketConfig(config.URL)
	wsConfig.BufferSize = config.BufferSize

	return &WebSocketProvider{
		config:     config,
		client:     NewWebSocketClient(wsConfig),
		normalizer: NewNormalizer(config.Format),
		tickChan:   make(chan *models.Tick, config.BufferSize),
	}, nil
}

// Connect starts the upstream connection
func (p *WebSocketProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return ErrProviderAlreadyConnected
	}
	if err := p.client.Connect(); err != nil {
		return err
	}
	p.connected = true
	return nil
}

// Subscribe starts normalizing upstream messages into ticks
func (p *WebSocketProvider) Subscribe(ctx context.Context) (<-chan *models.Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrProviderNotConnected
	}
	if p.cancel != nil {
		return nil, ErrAlreadySubscribed
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.forward(ctx)

	return p.tickChan, nil
}

func (p *WebSocketProvider) forward(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-p.client.Messages():
			tick, err := p.normalizer.Normalize(message)
			if err != nil {
				logger.Warn("Dropping unparseable message",
					logger.String("format", p.normalizer.GetFormat()),
					logger.ErrorField(err),
				)
				continue
			}
			select {
			case p.tickChan <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the provider and closes the tick channel
func (p *WebSocketProvider) Close() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := p.client.Close()
	p.wg.Wait()
	close(p.tickChan)
	return err
}

// IsConnected returns whether the provider is connected
func (p *WebSocketProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// GetName returns the provider name
func (p *WebSocketProvider) GetName() string {
	return "websocket"
}
