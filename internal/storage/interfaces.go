package storage

import (
	"context"
	"time"
)

// StreamWriter appends messages to a stream in one round trip
type StreamWriter interface {
	PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error
}

// StreamReader reads a stream through a consumer group.
// Messages stay pending until acknowledged.
type StreamReader interface {
	ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error)
	AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error
}

// AverageSink is what the average publisher needs: a stream plus expiring latest-value keys
type AverageSink interface {
	StreamWriter
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Subscriber receives pub/sub messages until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)
}

// RedisClient is the full Redis surface, implemented by pubsub.RedisClientImpl and MockRedisClient
type RedisClient interface {
	AverageSink
	StreamReader
	Subscriber
	Close() error
}

// StreamMessage represents a message from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
