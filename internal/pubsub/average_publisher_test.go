package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(mockRedis *storage.MockRedisClient, config AveragePublisherConfig) *AveragePublisher {
	publisher := NewAveragePublisher(mockRedis, config)
	ids := 0
	publisher.newID = func() string {
		ids++
		return fmt.Sprintf("event-%d", ids)
	}
	publisher.now = func() time.Time {
		return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	}
	return publisher
}

func decodeEvent(t *testing.T, msg storage.StreamMessage) models.AverageEvent {
	t.Helper()
	raw, ok := msg.Values["average"].(string)
	require.True(t, ok)

	var event models.AverageEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestAveragePublisher_FlushOnBatchSize(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.BatchSize = 3
	config.BatchTimeout = time.Hour

	publisher := newTestPublisher(mockRedis, config)
	publisher.Start()
	defer publisher.Close()

	publisher.OnAverage("sma_3", decimal.NewFromInt(10))
	publisher.OnAverage("sma_3", decimal.NewFromInt(15))
	assert.Equal(t, 2, publisher.PendingCount())

	publisher.OnAverage("sma_3", decimal.NewFromInt(20))

	require.Eventually(t, func() bool {
		return len(mockRedis.Messages()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, publisher.PendingCount())

	messages := mockRedis.Messages()
	for i, want := range []string{"10", "15", "20"} {
		event := decodeEvent(t, messages[i])
		assert.Equal(t, "averages", messages[i].Stream)
		assert.Equal(t, "sma_3", event.Calculator)
		assert.Equal(t, want, event.Value.String())
		assert.Equal(t, fmt.Sprintf("event-%d", i+1), event.ID)
		assert.NoError(t, event.Validate())
	}
}

func TestAveragePublisher_FlushOnInterval(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.BatchSize = 100
	config.BatchTimeout = 10 * time.Millisecond

	publisher := newTestPublisher(mockRedis, config)
	publisher.Start()
	defer publisher.Close()

	publisher.OnAverage("twa_5m", decimal.RequireFromString("43.33"))

	require.Eventually(t, func() bool {
		return len(mockRedis.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAveragePublisher_StoresLatestValue(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.LatestPrefix = "avg"
	config.LatestTTL = time.Minute

	publisher := newTestPublisher(mockRedis, config)

	publisher.OnAverage("ema_3_0.75", decimal.RequireFromString("7.5"))
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))
	publisher.OnAverage("ema_3_0.75", decimal.RequireFromString("16.875"))
	require.NoError(t, publisher.Flush(context.Background()))

	assert.Equal(t, "avg:sma_3", publisher.LatestKey("sma_3"))

	raw, exists := mockRedis.Value("avg:ema_3_0.75")
	require.True(t, exists)
	var latest models.AverageEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &latest))
	assert.Equal(t, "16.875", latest.Value.String())
	assert.Equal(t, time.Minute, mockRedis.TTLs["avg:ema_3_0.75"])

	_, exists = mockRedis.Value("avg:sma_3")
	assert.True(t, exists)
}

func TestAveragePublisher_LatestDisabled(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.LatestPrefix = ""

	publisher := newTestPublisher(mockRedis, config)
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))
	require.NoError(t, publisher.Flush(context.Background()))

	assert.Empty(t, mockRedis.Data)
	assert.Len(t, mockRedis.Messages(), 1)
}

func TestAveragePublisher_RetriesThenSucceeds(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	mockRedis.PublishErr = errors.New("connection reset")
	mockRedis.PublishFailures = 2

	config := DefaultAveragePublisherConfig("averages")
	config.RetryAttempts = 3
	config.RetryDelay = time.Millisecond

	publisher := newTestPublisher(mockRedis, config)
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))

	require.NoError(t, publisher.Flush(context.Background()))
	assert.Len(t, mockRedis.Messages(), 1)
}

func TestAveragePublisher_FailsAfterRetries(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	mockRedis.PublishErr = errors.New("connection refused")

	config := DefaultAveragePublisherConfig("averages")
	config.RetryAttempts = 2
	config.RetryDelay = time.Millisecond

	publisher := newTestPublisher(mockRedis, config)
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))

	err := publisher.Flush(context.Background())
	assert.ErrorIs(t, err, mockRedis.PublishErr)
	assert.Empty(t, mockRedis.Messages())
	assert.Equal(t, 0, publisher.PendingCount())
}

func TestAveragePublisher_RetryBackoffHonoursContext(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	mockRedis.PublishErr = errors.New("connection refused")

	config := DefaultAveragePublisherConfig("averages")
	config.RetryAttempts = 5
	config.RetryDelay = time.Second

	publisher := newTestPublisher(mockRedis, config)
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := publisher.Flush(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Empty(t, mockRedis.Messages())
}

func TestAveragePublisher_DropsInvalidEvents(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	publisher := newTestPublisher(mockRedis, DefaultAveragePublisherConfig("averages"))

	publisher.OnAverage("", decimal.NewFromInt(10))
	publisher.newID = func() string { return "" }
	publisher.OnAverage("sma_3", decimal.NewFromInt(10))

	assert.Equal(t, 0, publisher.PendingCount())
	require.NoError(t, publisher.Flush(context.Background()))
	assert.Empty(t, mockRedis.Messages())
}

func TestAveragePublisher_DropsWhenBufferFull(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.BatchSize = 10
	config.MaxPending = 2

	publisher := newTestPublisher(mockRedis, config)
	for i := 0; i < 5; i++ {
		publisher.OnAverage("sma_3", decimal.NewFromInt(int64(i)))
	}

	assert.Equal(t, 2, publisher.PendingCount())
}

func TestAveragePublisher_Partitioning(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.Partitions = 4

	publisher := newTestPublisher(mockRedis, config)

	names := []string{"sma_3", "ema_3_0.75", "twa_5m", "sma_20"}
	for _, name := range names {
		publisher.OnAverage(name, decimal.NewFromInt(1))
	}
	require.NoError(t, publisher.Flush(context.Background()))

	messages := mockRedis.Messages()
	require.Len(t, messages, len(names))
	for _, msg := range messages {
		assert.True(t, strings.HasPrefix(msg.Stream, "averages.p"), msg.Stream)
		event := decodeEvent(t, msg)
		assert.Equal(t, publisher.streamFor(event.Calculator), msg.Stream)
	}

	// The same calculator always maps to the same partition
	assert.Equal(t, publisher.streamFor("sma_3"), publisher.streamFor("sma_3"))
}

func TestAveragePublisher_CloseFlushesPending(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	config := DefaultAveragePublisherConfig("averages")
	config.BatchTimeout = time.Hour

	publisher := newTestPublisher(mockRedis, config)
	publisher.Start()

	publisher.OnAverage("sma_3", decimal.NewFromInt(10))
	require.NoError(t, publisher.Close())

	assert.Len(t, mockRedis.Messages(), 1)
}
