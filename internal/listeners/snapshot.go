package listeners

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// LatestValue is the most recent average seen for a calculator
type LatestValue struct {
	Calculator string          `json:"calculator"`
	Value      decimal.Decimal `json:"value"`
	Updates    int64           `json:"updates"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Snapshot keeps the latest value per calculator.
// It is written from the dispatch goroutine and read concurrently by the API.
type Snapshot struct {
	mu     sync.RWMutex
	values map[string]LatestValue
	now    func() time.Time
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		values: make(map[string]LatestValue),
		now:    time.Now,
	}
}

// OnAverage records the value as the latest for the calculator
func (s *Snapshot) OnAverage(name string, value decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.values[name]
	latest.Calculator = name
	latest.Value = value
	latest.Updates++
	latest.UpdatedAt = s.now().UTC()
	s.values[name] = latest
}

// Get returns the latest value for a calculator
func (s *Snapshot) Get(name string) (LatestValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, exists := s.values[name]
	return latest, exists
}

// All returns the latest values sorted by calculator name
func (s *Snapshot) All() []LatestValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]LatestValue, 0, len(s.values))
	for _, latest := range s.values {
		result = append(result, latest)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Calculator < result[j].Calculator
	})
	return result
}
