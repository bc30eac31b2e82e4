package pubsub

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "average_publish_total",
			Help: "Total number of average events published to streams",
		},
		[]string{"stream"},
	)

	publishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "average_publish_errors_total",
			Help: "Total number of average events that failed to publish",
		},
		[]string{"stream"},
	)

	publishDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "average_publish_dropped_total",
			Help: "Total number of average events dropped before publishing (invalid or buffer full)",
		},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "average_publish_latency_seconds",
			Help:    "Publish latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"stream"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "average_publish_batch_size",
			Help:    "Batch size for average publishing",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"stream"},
	)
)

// AveragePublisherConfig holds configuration for the average publisher
type AveragePublisherConfig struct {
	StreamName    string
	BatchSize     int
	BatchTimeout  time.Duration
	MaxPending    int // Events buffered before new ones are dropped (default: 10x BatchSize)
	Partitions    int // Number of partitions (0 = no partitioning)
	RetryAttempts int
	RetryDelay    time.Duration
	LatestPrefix  string        // Key prefix for latest values ("" disables them)
	LatestTTL     time.Duration // TTL of latest value keys
}

// DefaultAveragePublisherConfig returns default configuration
func DefaultAveragePublisherConfig(streamName string) AveragePublisherConfig {
	return AveragePublisherConfig{
		StreamName:    streamName,
		BatchSize:     100,
		BatchTimeout:  100 * time.Millisecond,
		Partitions:    0,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
		LatestPrefix:  "average",
		LatestTTL:     1 * time.Hour,
	}
}

// AveragePublisher publishes computed averages to Redis streams with batching.
// OnAverage never blocks on Redis; flushing happens on the publisher's own goroutine.
type AveragePublisher struct {
	config  AveragePublisherConfig
	redis   storage.AverageSink
	batch   []*models.AverageEvent
	batchMu sync.Mutex
	flushCh chan struct{}
	now     func() time.Time
	newID   func() string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAveragePublisher creates a new average publisher
func NewAveragePublisher(redis storage.AverageSink, config AveragePublisherConfig) *AveragePublisher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 100 * time.Millisecond
	}
	if config.MaxPending <= 0 {
		config.MaxPending = config.BatchSize * 10
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AveragePublisher{
		config:  config,
		redis:   redis,
		batch:   make([]*models.AverageEvent, 0, config.BatchSize),
		flushCh: make(chan struct{}, 1),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the batch publishing loop
func (p *AveragePublisher) Start() {
	p.wg.Add(1)
	go p.batchLoop()
}

// OnAverage queues an average event for publishing
func (p *AveragePublisher) OnAverage(name string, value decimal.Decimal) {
	event := &models.AverageEvent{
		ID:         p.newID(),
		Calculator: name,
		Value:      value,
		EmittedAt:  p.now().UTC(),
	}
	if err := event.Validate(); err != nil {
		publishDropped.Inc()
		logger.Warn("Dropping invalid average event",
			logger.ErrorField(err),
			logger.String("calculator", name),
		)
		return
	}

	p.batchMu.Lock()
	if len(p.batch) >= p.config.MaxPending {
		p.batchMu.Unlock()
		publishDropped.Inc()
		logger.Warn("Average publisher buffer full, dropping event",
			logger.String("calculator", name),
		)
		return
	}
	p.batch = append(p.batch, event)
	shouldFlush := len(p.batch) >= p.config.BatchSize
	p.batchMu.Unlock()

	if shouldFlush {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

// batchLoop periodically flushes the batch
func (p *AveragePublisher) batchLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flush(p.ctx)
		case <-p.flushCh:
			p.flush(p.ctx)
		}
	}
}

// flush publishes the current batch and refreshes the latest value keys
func (p *AveragePublisher) flush(ctx context.Context) error {
	p.batchMu.Lock()
	if len(p.batch) == 0 {
		p.batchMu.Unlock()
		return nil
	}

	batch := make([]*models.AverageEvent, len(p.batch))
	copy(batch, p.batch)
	p.batch = p.batch[:0]
	p.batchMu.Unlock()

	batchSize.WithLabelValues(p.config.StreamName).Observe(float64(len(batch)))

	// Group events by stream, preserving order within each stream
	streams := make([]string, 0, 1)
	grouped := make(map[string][]*models.AverageEvent)
	for _, event := range batch {
		stream := p.streamFor(event.Calculator)
		if _, exists := grouped[stream]; !exists {
			streams = append(streams, stream)
		}
		grouped[stream] = append(grouped[stream], event)
	}

	var lastErr error
	for _, stream := range streams {
		if err := p.publishBatch(ctx, stream, grouped[stream]); err != nil {
			lastErr = err
		}
	}

	p.storeLatest(ctx, batch)
	return lastErr
}

// publishBatch publishes events to one stream with retries
func (p *AveragePublisher) publishBatch(ctx context.Context, stream string, events []*models.AverageEvent) error {
	startTime := time.Now()

	messages := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to marshal average event",
				logger.ErrorField(err),
				logger.String("calculator", event.Calculator),
			)
			continue
		}
		messages = append(messages, map[string]interface{}{
			"average": string(eventJSON),
		})
	}

	if len(messages) == 0 {
		return nil
	}

	var err error
retry:
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		err = p.redis.PublishBatchToStream(ctx, stream, messages)
		if err == nil {
			break
		}

		if attempt < p.config.RetryAttempts-1 {
			logger.Warn("Failed to publish averages, retrying",
				logger.ErrorField(err),
				logger.String("stream", stream),
				logger.Int("attempt", attempt+1),
				logger.Int("count", len(messages)),
			)
			select {
			case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
			case <-ctx.Done():
				err = ctx.Err()
				break retry
			}
		}
	}

	if err != nil {
		publishErrors.WithLabelValues(stream).Add(float64(len(messages)))
		logger.Error("Failed to publish averages after retries",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.Int("count", len(messages)),
		)
		return err
	}

	publishTotal.WithLabelValues(stream).Add(float64(len(messages)))
	publishLatency.WithLabelValues(stream).Observe(time.Since(startTime).Seconds())

	logger.Debug("Published averages to stream",
		logger.String("stream", stream),
		logger.Int("count", len(messages)),
		logger.Duration("latency", time.Since(startTime)),
	)
	return nil
}

// storeLatest writes the last event of each calculator in the batch under LatestKey
func (p *AveragePublisher) storeLatest(ctx context.Context, batch []*models.AverageEvent) {
	if p.config.LatestPrefix == "" {
		return
	}

	latest := make(map[string]*models.AverageEvent)
	order := make([]string, 0)
	for _, event := range batch {
		if _, exists := latest[event.Calculator]; !exists {
			order = append(order, event.Calculator)
		}
		latest[event.Calculator] = event
	}

	for _, name := range order {
		key := p.LatestKey(name)
		if err := p.redis.Set(ctx, key, latest[name], p.config.LatestTTL); err != nil {
			logger.Warn("Failed to store latest average",
				logger.ErrorField(err),
				logger.String("key", key),
			)
		}
	}
}

// LatestKey returns the key holding the latest value of a calculator
func (p *AveragePublisher) LatestKey(name string) string {
	return fmt.Sprintf("%s:%s", p.config.LatestPrefix, name)
}

// streamFor returns the stream for a calculator, hashing the name when partitioned
func (p *AveragePublisher) streamFor(name string) string {
	if p.config.Partitions <= 0 {
		return p.config.StreamName
	}

	hash := sha256.Sum256([]byte(name))
	hashInt := int(hash[0])<<16 | int(hash[1])<<8 | int(hash[2])
	return fmt.Sprintf("%s.p%d", p.config.StreamName, hashInt%p.config.Partitions)
}

// Flush forces an immediate flush of the current batch
func (p *AveragePublisher) Flush(ctx context.Context) error {
	return p.flush(ctx)
}

// Close stops the publisher and flushes remaining events
func (p *AveragePublisher) Close() error {
	p.cancel()
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.flush(ctx)
}

// PendingCount returns the number of events waiting to be flushed
func (p *AveragePublisher) PendingCount() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batch)
}
