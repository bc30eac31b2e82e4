package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrProviderNotConnected is returned when operations are attempted on a disconnected provider
	ErrProviderNotConnected = errors.New("provider is not connected")
	// ErrProviderAlreadyConnected is returned when attempting to connect an already connected provider
	ErrProviderAlreadyConnected = errors.New("provider is already connected")
	// ErrAlreadySubscribed is returned when Subscribe is called twice on one provider
	ErrAlreadySubscribed = errors.New("provider is already subscribed")
)

// Provider defines the interface for tick sources
type Provider interface {
	// Connect establishes a connection to the tick source
	Connect(ctx context.Context) error

	// Subscribe starts the tick stream.
	// The returned channel is closed when the provider is closed.
	Subscribe(ctx context.Context) (<-chan *models.Tick, error)

	// Close closes the connection to the provider
	Close() error

	// IsConnected returns whether the provider is currently connected
	IsConnected() bool

	// GetName returns the name/type of the provider (e.g., "mock", "redis")
	GetName() string
}

// ProviderFactory creates provider instances
type ProviderFactory interface {
	// CreateProvider creates a new provider instance based on the provider type
	CreateProvider(providerType string, config ProviderConfig) (Provider, error)

	// RegisterProvider registers a custom provider factory function
	RegisterProvider(providerType string, factoryFunc func(ProviderConfig) (Provider, error)) error

	// ListProviders returns a list of available provider types
	ListProviders() []string
}

// ProviderConfig holds configuration for a provider
type ProviderConfig struct {
	// Mock settings
	Interval   time.Duration   // Time between generated ticks (default: 1s)
	StartPrice decimal.Decimal // First price of the random walk (default: 100)
	Seed       int64           // Random seed; 0 uses the current time

	// WebSocket settings
	URL    string
	Format string // Normalizer format ("generic", "alpaca", "polygon")

	// Channel buffer size (default: 100)
	BufferSize int
}

// DefaultProviderFactory is the default implementation of ProviderFactory
type DefaultProviderFactory struct {
	mu        sync.RWMutex
	factories map[string]func(ProviderConfig) (Provider, error)
}

// NewProviderFactory creates a new provider factory with the built-in providers
func NewProviderFactory() *DefaultProviderFactory {
	factory := &DefaultProviderFactory{
		factories: make(map[string]func(ProviderConfig) (Provider, error)),
	}

	factory.factories["mock"] = NewMockProvider
	factory.factories["websocket"] = NewWebSocketProvider

	return factory
}

// CreateProvider creates a new provider instance
func (f *DefaultProviderFactory) CreateProvider(providerType string, config ProviderConfig) (Provider, error) {
	f.mu.RLock()
	factoryFunc, exists := f.factories[providerType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	return factoryFunc(config)
}

// RegisterProvider registers a custom provider factory function
func (f *DefaultProviderFactory) RegisterProvider(providerType string, factoryFunc func(ProviderConfig) (Provider, error)) error {
	if factoryFunc == nil {
		return fmt.Errorf("factory for provider type %s cannot be nil", providerType)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[providerType]; exists {
		return fmt.Errorf("provider type already registered: %s", providerType)
	}
	f.factories[providerType] = factoryFunc
	return nil
}

// ListProviders returns the available provider types in sorted order
func (f *DefaultProviderFactory) ListProviders() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	providers := make([]string, 0, len(f.factories))
	for providerType := range f.factories {
		providers = append(providers, providerType)
	}
	sort.Strings(providers)
	return providers
}
