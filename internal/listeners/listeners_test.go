package listeners

import (
	"sync"
	"testing"
	"time"

	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogListener_OnAverage(t *testing.T) {
	prev := logger.Get()
	defer logger.Set(prev)

	core, logs := observer.New(zap.InfoLevel)
	logger.Set(zap.New(core))

	l := NewLogListener("listener-1")
	l.OnAverage("sma_3", decimal.RequireFromString("15.0000"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Received average", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "listener-1", fields["listener"])
	assert.Equal(t, "sma_3", fields["calculator"])
	assert.Equal(t, "15", fields["value"])
}

func TestSnapshot_KeepsLatestValue(t *testing.T) {
	s := NewSnapshot()
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, exists := s.Get("sma")
	assert.False(t, exists)

	s.OnAverage("sma", decimal.NewFromInt(10))
	s.OnAverage("sma", decimal.NewFromInt(15))
	s.OnAverage("ema", decimal.RequireFromString("7.5"))

	latest, exists := s.Get("sma")
	require.True(t, exists)
	assert.True(t, latest.Value.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int64(2), latest.Updates)
	assert.Equal(t, fixed, latest.UpdatedAt)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "ema", all[0].Calculator)
	assert.Equal(t, "sma", all[1].Calculator)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	s := NewSnapshot()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.OnAverage("sma", decimal.NewFromInt(int64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.All()
		}
	}()
	wg.Wait()

	latest, _ := s.Get("sma")
	assert.Equal(t, int64(1000), latest.Updates)
}
