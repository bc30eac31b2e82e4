package indicator

import (
	"fmt"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

// twaPrecision is the number of fractional digits in time-windowed results
const twaPrecision = 2

// TWA calculates the average price of ticks inside a trailing time window.
//
// The eviction clock is the timestamp of the most recently processed tick, not
// wall-clock time. Only the head of the window is evicted, so an out-of-order
// stale tick behind a fresher head stays until it reaches the head.
type TWA struct {
	lifecycle
	duration time.Duration
	window   *tickWindow
	sum      decimal.Decimal
}

// NewTWA creates a new time-windowed average calculator
func NewTWA(duration time.Duration) (*TWA, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("TWA window duration must be positive, got %s", duration)
	}

	return &TWA{
		duration: duration,
		window:   newTickWindow(16),
		sum:      decimal.Zero,
	}, nil
}

// Calculate adds the tick to the window, evicts expired head ticks and returns
// the average rounded half-up to 2 digits
func (w *TWA) Calculate(tick models.Tick) decimal.Decimal {
	process, clear := w.begin()
	if !process {
		return decimal.Zero
	}
	if clear {
		w.window.Clear()
		w.sum = decimal.Zero
	}

	w.window.PushBack(tick)
	w.sum = w.sum.Add(tick.Price)

	cutoff := tick.Timestamp.Add(-w.duration)
	for {
		head, ok := w.window.Front()
		if !ok || !head.Timestamp.Before(cutoff) {
			break
		}
		w.window.PopFront()
		w.sum = w.sum.Sub(head.Price)
	}

	return mean(w.sum, w.window.Len(), twaPrecision)
}

// Duration returns the window duration
func (w *TWA) Duration() time.Duration {
	return w.duration
}

// WindowLen returns the number of ticks currently retained
func (w *TWA) WindowLen() int {
	return w.window.Len()
}
