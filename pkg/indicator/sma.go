package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

// smaPrecision is the number of fractional digits in SMA results
const smaPrecision = 4

// SMA calculates the Simple Moving Average of the last windowSize tick prices.
// SMA = Sum of prices in window / number of ticks in window
type SMA struct {
	lifecycle
	windowSize int
	window     *tickWindow
	sum        decimal.Decimal
}

// NewSMA creates a new SMA calculator with the specified window size
func NewSMA(windowSize int) (*SMA, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("SMA window size must be at least 1, got %d", windowSize)
	}

	return &SMA{
		windowSize: windowSize,
		window:     newTickWindow(windowSize + 1),
		sum:        decimal.Zero,
	}, nil
}

// Calculate adds the tick to the window and returns the average rounded half-up to 4 digits
func (s *SMA) Calculate(tick models.Tick) decimal.Decimal {
	process, clear := s.begin()
	if !process {
		return decimal.Zero
	}
	if clear {
		s.window.Clear()
		s.sum = decimal.Zero
	}

	s.window.PushBack(tick)
	s.sum = s.sum.Add(tick.Price)

	// Evict the oldest tick once the window overflows
	if s.window.Len() > s.windowSize {
		oldest, _ := s.window.PopFront()
		s.sum = s.sum.Sub(oldest.Price)
	}

	return mean(s.sum, s.window.Len(), smaPrecision)
}

// WindowSize returns the maximum number of ticks retained
func (s *SMA) WindowSize() int {
	return s.windowSize
}

// WindowLen returns the number of ticks currently retained
func (s *SMA) WindowLen() int {
	return s.window.Len()
}

// mean divides sum by n rounding half-up to places fractional digits.
// Every caller appends a tick before dividing, so n == 0 is a broken invariant.
func mean(sum decimal.Decimal, n int, places int32) decimal.Decimal {
	if n == 0 {
		panic("indicator: average requested over an empty window")
	}
	return sum.DivRound(decimal.NewFromInt(int64(n)), places)
}
