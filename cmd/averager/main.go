package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mohamedkhairy/tick-averager/internal/api"
	"github.com/mohamedkhairy/tick-averager/internal/config"
	"github.com/mohamedkhairy/tick-averager/internal/data"
	"github.com/mohamedkhairy/tick-averager/internal/listeners"
	"github.com/mohamedkhairy/tick-averager/internal/pipeline"
	"github.com/mohamedkhairy/tick-averager/internal/pubsub"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/internal/tickmanager"
	"github.com/mohamedkhairy/tick-averager/internal/wsgateway"
	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting tick averager",
		logger.Int("port", cfg.API.Port),
		logger.String("provider", cfg.TickSource.Provider),
		logger.Int("calculators", len(cfg.Averages.Definitions)),
		logger.Bool("publisher_enabled", cfg.Publisher.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build calculators in configuration order
	registry := indicator.NewRegistry()
	manager, err := tickmanager.NewFromDefinitions(registry, cfg.Averages.Definitions)
	if err != nil {
		logger.Fatal("Failed to build calculators", logger.ErrorField(err))
	}
	names := manager.Names()

	// Redis is only needed for the stream source, the publisher and remote control
	var redisClient storage.RedisClient
	if cfg.TickSource.Provider == "redis" || cfg.Publisher.Enabled || cfg.Pipeline.ControlChannel != "" {
		redisClient, err = pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
		}
		defer redisClient.Close()
	}

	// Listeners
	snapshot := listeners.NewSnapshot()
	hub := wsgateway.NewHub(cfg.WSGateway, names)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub", logger.ErrorField(err))
	}
	defer hub.Stop()

	averageListeners := []tickmanager.AverageListener{snapshot, hub}
	if cfg.LogLevel == "debug" {
		averageListeners = append(averageListeners, listeners.NewLogListener("log"))
	}

	var publisher *pubsub.AveragePublisher
	if cfg.Publisher.Enabled {
		publisher = pubsub.NewAveragePublisher(redisClient, pubsub.AveragePublisherConfig{
			StreamName:    cfg.Publisher.StreamName,
			BatchSize:     cfg.Publisher.BatchSize,
			BatchTimeout:  cfg.Publisher.BatchTimeout,
			Partitions:    cfg.Publisher.Partitions,
			RetryAttempts: cfg.Publisher.MaxRetries,
			RetryDelay:    cfg.Publisher.RetryDelay,
			LatestPrefix:  cfg.Publisher.LatestPrefix,
			LatestTTL:     cfg.Publisher.LatestTTL,
		})
		publisher.Start()
		defer publisher.Close()
		averageListeners = append(averageListeners, publisher)
	}

	for _, name := range names {
		for _, listener := range averageListeners {
			if err := manager.AddListener(name, listener); err != nil {
				logger.Fatal("Failed to register listener",
					logger.ErrorField(err),
					logger.String("calculator", name),
				)
			}
		}
	}

	// Single-writer pipeline in front of the calculators
	tickPipeline := pipeline.New(manager, pipeline.Config{
		QueueSize:      cfg.Pipeline.QueueSize,
		EnqueueTimeout: cfg.Pipeline.EnqueueTimeout,
	})
	if err := tickPipeline.Start(); err != nil {
		logger.Fatal("Failed to start pipeline", logger.ErrorField(err))
	}

	// Tick source
	provider, err := newProvider(cfg.TickSource, redisClient)
	if err != nil {
		logger.Fatal("Failed to create tick provider",
			logger.ErrorField(err),
			logger.String("provider", cfg.TickSource.Provider),
		)
	}
	if err := provider.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect tick provider", logger.ErrorField(err))
	}
	tickChan, err := provider.Subscribe(ctx)
	if err != nil {
		logger.Fatal("Failed to subscribe to ticks", logger.ErrorField(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tickPipeline.Consume(ctx, tickChan)
	}()

	// Remote control over Redis pub/sub
	var controlSubscriber *pubsub.ControlSubscriber
	if cfg.Pipeline.ControlChannel != "" {
		controlSubscriber = pubsub.NewControlSubscriber(redisClient, cfg.Pipeline.ControlChannel, tickPipeline)
		if err := controlSubscriber.Start(ctx); err != nil {
			logger.Fatal("Failed to start control subscriber", logger.ErrorField(err))
		}
	}

	// HTTP and WebSocket server
	auth := wsgateway.NewAuthManager(cfg.WSGateway.JWTSecret)
	server := api.NewServer(cfg.API, api.Dependencies{
		Definitions: cfg.Averages.Definitions,
		Kinds:       registry.Kinds(),
		Pipeline:    tickPipeline,
		Averages:    snapshot,
		Auth:        auth,
		WebSocket:   wsgateway.NewHandler(hub, auth),
		ReadyChecks: map[string]func() error{
			"tick_source": func() error {
				if !provider.IsConnected() {
					return data.ErrProviderNotConnected
				}
				return nil
			},
		},
	})
	server.Start()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down tick averager")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", logger.ErrorField(err))
	}

	if controlSubscriber != nil {
		controlSubscriber.Stop()
	}

	// Stop the source first so every accepted tick is applied before listeners close
	cancel()
	wg.Wait()
	if err := provider.Close(); err != nil {
		logger.Warn("Error closing tick provider", logger.ErrorField(err))
	}
	tickPipeline.Stop()

	stats := tickPipeline.GetStats()
	logger.Info("Tick averager stopped",
		logger.Int64("ticks_processed", stats.TicksProcessed),
		logger.Int64("ticks_rejected", stats.TicksRejected),
		logger.Int64("commands_dropped", stats.CommandsDropped),
	)
}

// newProvider creates the configured tick source
func newProvider(cfg config.TickSourceConfig, redisClient storage.RedisClient) (data.Provider, error) {
	if cfg.Provider == "redis" {
		streamConfig := pubsub.DefaultTickStreamConfig(cfg.StreamName, cfg.ConsumerGroup, cfg.ConsumerName)
		streamConfig.Format = cfg.MessageFormat
		return pubsub.NewTickStreamProvider(redisClient, streamConfig), nil
	}

	startPrice, err := decimal.NewFromString(cfg.MockStart)
	if err != nil {
		return nil, fmt.Errorf("invalid mock start price: %w", err)
	}

	return data.NewProviderFactory().CreateProvider(cfg.Provider, data.ProviderConfig{
		Interval:   cfg.MockInterval,
		StartPrice: startPrice,
		URL:        cfg.WebSocketURL,
		Format:     cfg.MessageFormat,
	})
}
