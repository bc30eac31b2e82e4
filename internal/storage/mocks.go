package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu           sync.Mutex
	Data         map[string]string
	TTLs         map[string]time.Duration
	StreamData   []StreamMessage
	PubSubData   []PubSubMessage
	Acked        []string
	PublishErr   error
	SetErr       error
	SubscribeErr error
	ConsumeErr   error
	AckErr       error

	// PublishFailures makes the next N publish calls fail with PublishErr
	PublishFailures int
	publishCalls    int
	nextID          int
}

// NewMockRedisClient creates an empty mock client
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data: make(map[string]string),
		TTLs: make(map[string]time.Duration),
	}
}

func (m *MockRedisClient) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishCalls++
	if m.PublishErr != nil && (m.PublishFailures == 0 || m.publishCalls <= m.PublishFailures) {
		return m.PublishErr
	}
	for _, msg := range messages {
		m.nextID++
		m.StreamData = append(m.StreamData, StreamMessage{
			ID:     fmt.Sprintf("%d-0", m.nextID),
			Stream: stream,
			Values: msg,
		})
	}
	return nil
}

// ConsumeFromStream delivers the stored messages for stream, then closes the channel
func (m *MockRedisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	ch := make(chan StreamMessage, len(m.StreamData))
	for _, msg := range m.StreamData {
		if msg.Stream == "" || msg.Stream == stream {
			ch <- msg
		}
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AckErr != nil {
		return m.AckErr
	}
	m.Acked = append(m.Acked, id)
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.Data[key] = string(jsonData)
	m.TTLs[key] = ttl
	return nil
}

// Subscribe delivers the stored pub/sub messages, then closes the channel
func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) Close() error {
	return nil
}

// Value returns the stored JSON for key
func (m *MockRedisClient) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, exists := m.Data[key]
	return value, exists
}

// Messages returns a copy of the published stream messages
func (m *MockRedisClient) Messages() []StreamMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamMessage(nil), m.StreamData...)
}

// AckedIDs returns a copy of the acknowledged message IDs
func (m *MockRedisClient) AckedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Acked...)
}
