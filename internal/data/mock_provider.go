package data

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

var (
	minMockPrice = decimal.RequireFromString("0.01")
	// Each step moves the price by up to +/-0.5%
	maxStepBasisPoints = int64(50)
)

// MockProvider generates a random-walk tick stream for local runs and tests
type MockProvider struct {
	name      string
	config    ProviderConfig
	connected bool
	tickChan  chan *models.Tick
	rng       *rand.Rand
	now       func() time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMockProvider creates a new mock provider
func NewMockProvider(config ProviderConfig) (Provider, error) {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Second
	}
	if !config.StartPrice.IsPositive() {
		config.StartPrice = decimal.NewFromInt(100)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &MockProvider{
		name:     "mock",
		config:   config,
		tickChan: make(chan *models.Tick, config.BufferSize),
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}, nil
}

// Connect establishes a connection (mock - always succeeds)
func (m *MockProvider) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrProviderAlreadyConnected
	}

	m.connected = true
	return nil
}

// Subscribe starts generating ticks
func (m *MockProvider) Subscribe(ctx context.Context) (<-chan *models.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrProviderNotConnected
	}
	if m.cancel != nil {
		return nil, ErrAlreadySubscribed
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.generateTicks(ctx)

	return m.tickChan, nil
}

// Close stops generation and closes the tick channel
func (m *MockProvider) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.connected = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	close(m.tickChan)

	return nil
}

// IsConnected returns whether the provider is connected
func (m *MockProvider) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// GetName returns the provider name
func (m *MockProvider) GetName() string {
	return m.name
}

// generateTicks emits one tick per interval until ctx is done
func (m *MockProvider) generateTicks(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	price := m.config.StartPrice

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price = m.nextPrice(price)
			tick := models.NewTick(price, m.now().UTC())

			// Send tick (non-blocking)
			select {
			case m.tickChan <- &tick:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip this tick
			}
		}
	}
}

// nextPrice moves price by a random step rounded to cents, never below one cent
func (m *MockProvider) nextPrice(price decimal.Decimal) decimal.Decimal {
	bps := m.rng.Int63n(2*maxStepBasisPoints+1) - maxStepBasisPoints
	step := price.Mul(decimal.New(bps, -4))
	next := price.Add(step).Round(2)
	if next.LessThan(minMockPrice) {
		return minMockPrice
	}
	return next
}
