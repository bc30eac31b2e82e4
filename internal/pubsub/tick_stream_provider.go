package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/data"
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tick_stream_messages_total",
			Help: "Total number of tick stream messages by outcome",
		},
		[]string{"stream", "outcome"},
	)
)

// TickStreamConfig holds configuration for the Redis tick stream provider
type TickStreamConfig struct {
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	MessageField  string // Field holding the tick JSON (default: "tick")
	Format        string // Normalizer format (default: "generic")
	AckTimeout    time.Duration
	BufferSize    int
}

// DefaultTickStreamConfig returns default configuration
func DefaultTickStreamConfig(streamName, consumerGroup, consumerName string) TickStreamConfig {
	return TickStreamConfig{
		StreamName:    streamName,
		ConsumerGroup: consumerGroup,
		ConsumerName:  consumerName,
		MessageField:  "tick",
		Format:        "generic",
		AckTimeout:    10 * time.Second,
		BufferSize:    100,
	}
}

// ConsumerStats holds statistics about the stream provider
type ConsumerStats struct {
	MessagesProcessed int64
	MessagesAcked     int64
	MessagesFailed    int64
	LastMessageTime   time.Time
}

// TickStreamProvider is a data.Provider that reads ticks from a Redis stream consumer group.
// A message is acknowledged once its tick has been handed to the subscriber;
// messages that fail to parse stay pending for inspection.
type TickStreamProvider struct {
	config     TickStreamConfig
	redis      storage.StreamReader
	normalizer data.Normalizer
	tickChan   chan *models.Tick
	connected  bool
	mu         sync.RWMutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	statsMu sync.RWMutex
	stats   ConsumerStats
}

// NewTickStreamProvider creates a new Redis stream tick provider
func NewTickStreamProvider(redis storage.StreamReader, config TickStreamConfig) *TickStreamProvider {
	if config.MessageField == "" {
		config.MessageField = "tick"
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = 10 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}

	return &TickStreamProvider{
		config:     config,
		redis:      redis,
		normalizer: data.NewNormalizer(config.Format),
		tickChan:   make(chan *models.Tick, config.BufferSize),
	}
}

// Connect marks the provider as connected; the Redis client is already connected
func (p *TickStreamProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return data.ErrProviderAlreadyConnected
	}
	p.connected = true
	return nil
}

// Subscribe starts consuming the stream
func (p *TickStreamProvider) Subscribe(ctx context.Context) (<-chan *models.Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, data.ErrProviderNotConnected
	}
	if p.cancel != nil {
		return nil, data.ErrAlreadySubscribed
	}

	ctx, cancel := context.WithCancel(ctx)
	messageChan, err := p.redis.ConsumeFromStream(ctx, p.config.StreamName, p.config.ConsumerGroup, p.config.ConsumerName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to consume from stream %s: %w", p.config.StreamName, err)
	}

	logger.Info("Consuming ticks from stream",
		logger.String("stream", p.config.StreamName),
		logger.String("group", p.config.ConsumerGroup),
		logger.String("consumer", p.config.ConsumerName),
	)

	p.cancel = cancel
	p.wg.Add(1)
	go p.consume(ctx, messageChan)

	return p.tickChan, nil
}

func (p *TickStreamProvider) consume(ctx context.Context, messageChan <-chan storage.StreamMessage) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				logger.Debug("Stream message channel closed",
					logger.String("stream", p.config.StreamName),
				)
				return
			}

			tick, err := p.decode(msg)
			if err != nil {
				logger.Warn("Failed to decode tick message",
					logger.ErrorField(err),
					logger.String("stream", msg.Stream),
					logger.String("message_id", msg.ID),
				)
				streamMessagesTotal.WithLabelValues(p.config.StreamName, "failed").Inc()
				p.incrementFailed()
				continue
			}

			select {
			case p.tickChan <- tick:
			case <-ctx.Done():
				return
			}
			streamMessagesTotal.WithLabelValues(p.config.StreamName, "processed").Inc()
			p.incrementProcessed()
			p.acknowledge(msg)
		}
	}
}

// decode extracts the tick JSON from a stream message
func (p *TickStreamProvider) decode(msg storage.StreamMessage) (*models.Tick, error) {
	raw, ok := msg.Values[p.config.MessageField].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("message has no %q field", p.config.MessageField)
	}
	return p.normalizer.Normalize([]byte(raw))
}

func (p *TickStreamProvider) acknowledge(msg storage.StreamMessage) {
	if msg.ID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.AckTimeout)
	defer cancel()

	stream := msg.Stream
	if stream == "" {
		stream = p.config.StreamName
	}
	if err := p.redis.AcknowledgeMessage(ctx, stream, p.config.ConsumerGroup, msg.ID); err != nil {
		logger.Error("Failed to acknowledge message",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("message_id", msg.ID),
		)
		return
	}

	p.statsMu.Lock()
	p.stats.MessagesAcked++
	p.statsMu.Unlock()
}

// Close stops consuming and closes the tick channel
func (p *TickStreamProvider) Close() error {
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
	p.wg.Wait()
	close(p.tickChan)
	return nil
}

// IsConnected returns whether the provider is connected
func (p *TickStreamProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// GetName returns the provider name
func (p *TickStreamProvider) GetName() string {
	return "redis"
}

// GetStats returns current consumer statistics
func (p *TickStreamProvider) GetStats() ConsumerStats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

func (p *TickStreamProvider) incrementProcessed() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.MessagesProcessed++
	p.stats.LastMessageTime = time.Now()
}

func (p *TickStreamProvider) incrementFailed() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.MessagesFailed++
}
