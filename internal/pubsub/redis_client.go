package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/config"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	streamReadCount = 10
	streamReadBlock = time.Second
)

// RedisClientImpl implements the storage.RedisClient interface
type RedisClientImpl struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (storage.RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisClientImpl{client: rdb}, nil
}

// PublishBatchToStream publishes multiple messages to a Redis stream using a pipeline
func (r *RedisClientImpl) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if len(messages) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, msg := range messages {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: msg,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to stream %s: %w", stream, err)
	}
	return nil
}

// ConsumeFromStream reads new messages for a consumer group until ctx is done.
// The group is created (with MKSTREAM) if it does not exist.
func (r *RedisClientImpl) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan storage.StreamMessage, error) {
	if err := r.ensureGroup(ctx, stream, group); err != nil {
		return nil, err
	}

	messageChan := make(chan storage.StreamMessage, 100)

	go func() {
		defer close(messageChan)

		for {
			if ctx.Err() != nil {
				return
			}

			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    streamReadCount,
				Block:    streamReadBlock,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}

				// The stream or group was deleted underneath us
				if strings.Contains(err.Error(), "NOGROUP") {
					logger.Warn("Consumer group not found, attempting to create",
						logger.String("stream", stream),
						logger.String("group", group),
					)
					if createErr := r.ensureGroup(ctx, stream, group); createErr != nil {
						logger.Error("Failed to recreate consumer group", logger.ErrorField(createErr))
					}
					sleepCtx(ctx, 2*time.Second)
					continue
				}

				logger.Error("Error reading from stream",
					logger.ErrorField(err),
					logger.String("stream", stream),
				)
				sleepCtx(ctx, time.Second)
				continue
			}

			for _, s := range streams {
				for _, message := range s.Messages {
					msg := storage.StreamMessage{
						ID:     message.ID,
						Stream: s.Stream,
						Values: message.Values,
					}
					select {
					case messageChan <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return messageChan, nil
}

// ensureGroup creates the consumer group, tolerating BUSYGROUP
func (r *RedisClientImpl) ensureGroup(ctx context.Context, stream, group string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err == nil || strings.HasPrefix(err.Error(), "BUSYGROUP") {
			logger.Debug("Consumer group ready",
				logger.String("stream", stream),
				logger.String("group", group),
			)
			return nil
		}

		logger.Warn("Failed to create consumer group, retrying",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("group", group),
			logger.Int("attempt", attempt+1),
		)
		sleepCtx(ctx, time.Second*time.Duration(attempt+1))
	}
	return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
}

// AcknowledgeMessage acknowledges a message in a Redis stream
func (r *RedisClientImpl) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return r.client.XAck(ctx, stream, group, id).Err()
}

// Set stores value as JSON with a TTL
func (r *RedisClientImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.client.Set(ctx, key, jsonData, ttl).Err()
}

// Subscribe subscribes to pub/sub channels
func (r *RedisClientImpl) Subscribe(ctx context.Context, channels ...string) (<-chan storage.PubSubMessage, error) {
	ps := r.client.Subscribe(ctx, channels...)

	// Wait for the subscription confirmation so errors surface here
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
	}

	messageChan := make(chan storage.PubSubMessage, 100)

	go func() {
		defer close(messageChan)
		defer ps.Close()
		ch := ps.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case messageChan <- storage.PubSubMessage{Channel: msg.Channel, Message: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messageChan, nil
}

// Close closes the Redis connection
func (r *RedisClientImpl) Close() error {
	return r.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
