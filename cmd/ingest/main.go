package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/config"
	"github.com/mohamedkhairy/tick-averager/internal/data"
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/pubsub"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	ingestBatchSize    = 100
	ingestBatchTimeout = 100 * time.Millisecond
)

// ingest feeds ticks from the mock or WebSocket source into the Redis tick stream
// read by the averager's "redis" provider.
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

	source := cfg.TickSource.Provider
	if source == "redis" {
		source = "mock"
	}

	logger.Info("Starting ingest service",
		logger.String("stream", cfg.TickSource.StreamName),
		logger.String("provider", source),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	startPrice, err := decimal.NewFromString(cfg.TickSource.MockStart)
	if err != nil {
		logger.Fatal("Invalid mock start price", logger.ErrorField(err))
	}

	provider, err := data.NewProviderFactory().CreateProvider(source, data.ProviderConfig{
		Interval:   cfg.TickSource.MockInterval,
		StartPrice: startPrice,
		URL:        cfg.TickSource.WebSocketURL,
		Format:     cfg.TickSource.MessageFormat,
	})
	if err != nil {
		logger.Fatal("Failed to create provider",
			logger.ErrorField(err),
			logger.String("provider", source),
		)
	}
	defer provider.Close()

	if err := provider.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect to provider",
			logger.ErrorField(err),
		)
	}

	tickChan, err := provider.Subscribe(ctx)
	if err != nil {
		logger.Fatal("Failed to subscribe to ticks",
			logger.ErrorField(err),
		)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go ingestLoop(ctx, &wg, tickChan, redisClient, cfg.TickSource.StreamName)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down ingest service")

	cancel()
	wg.Wait()

	logger.Info("Ingest service stopped")
}

// ingestLoop batches ticks from the provider and appends them to the stream
func ingestLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	tickChan <-chan *models.Tick,
	redisClient storage.StreamWriter,
	stream string,
) {
	defer wg.Done()

	ticker := time.NewTicker(ingestBatchTimeout)
	defer ticker.Stop()

	batch := make([]map[string]interface{}, 0, ingestBatchSize)
	tickCount := 0
	errorCount := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.PublishBatchToStream(flushCtx, stream, batch); err != nil {
			errorCount += len(batch)
			logger.Error("Failed to publish ticks",
				logger.ErrorField(err),
				logger.Int("batch_size", len(batch)),
			)
		} else {
			tickCount += len(batch)
		}
		batch = batch[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Ingestion loop stopped",
				logger.Int("ticks_published", tickCount),
				logger.Int("errors", errorCount),
			)
			return

		case <-ticker.C:
			flush()

		case tick, ok := <-tickChan:
			if !ok {
				logger.Warn("Tick channel closed")
				return
			}
			if tick == nil {
				continue
			}

			payload, err := json.Marshal(tick)
			if err != nil {
				errorCount++
				continue
			}
			batch = append(batch, map[string]interface{}{"tick": string(payload)})
			if len(batch) >= ingestBatchSize {
				flush()
			}
		}
	}
}
