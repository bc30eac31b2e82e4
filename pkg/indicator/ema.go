package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

// emaScale is the number of decimal places the carried EMA keeps between ticks
const emaScale = 20

// EMA calculates a bounded-window Exponential Moving Average.
// EMA(t) = alpha * Price(t) + (1 - alpha) * EMA(t-1)
//
// The window keeps the last windowSize ticks. When a tick is evicted its decayed
// contribution, approximated as price * alpha * (1-alpha)^(windowSize-1), is
// removed before the new price is folded in. Results are not rounded to an
// output precision; the carried value is held at emaScale decimal places so
// each update stays O(1).
//
// alpha must satisfy 0 < alpha <= 1; it is not checked.
type EMA struct {
	lifecycle
	windowSize    int
	alpha         decimal.Decimal
	decay         decimal.Decimal // 1 - alpha
	removalFactor decimal.Decimal // (1 - alpha)^(windowSize-1)
	window        *tickWindow
	value         decimal.Decimal
}

// NewEMA creates a new EMA calculator with the specified window size and smoothing factor
func NewEMA(windowSize int, alpha decimal.Decimal) (*EMA, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("EMA window size must be at least 1, got %d", windowSize)
	}

	decay := decimal.NewFromInt(1).Sub(alpha)

	removalFactor := decimal.NewFromInt(1)
	for i := 0; i < windowSize-1; i++ {
		removalFactor = removalFactor.Mul(decay).Round(emaScale)
	}

	return &EMA{
		windowSize:    windowSize,
		alpha:         alpha,
		decay:         decay,
		removalFactor: removalFactor,
		window:        newTickWindow(windowSize + 1),
		value:         decimal.Zero,
	}, nil
}

// Calculate adds the tick to the window and returns the updated EMA
func (e *EMA) Calculate(tick models.Tick) decimal.Decimal {
	process, clear := e.begin()
	if !process {
		return decimal.Zero
	}
	if clear {
		e.window.Clear()
		e.value = decimal.Zero
	}

	e.window.PushBack(tick)
	weighted := tick.Price.Mul(e.alpha)

	switch {
	case e.window.Len() > e.windowSize:
		oldest, _ := e.window.PopFront()
		withoutOldest := e.value.Sub(oldest.Price.Mul(e.alpha).Mul(e.removalFactor))
		e.value = withoutOldest.Mul(e.decay).Add(weighted)
	case e.window.Len() == 1:
		e.value = weighted
	default:
		e.value = e.value.Mul(e.decay).Add(weighted)
	}
	e.value = e.value.Round(emaScale)

	return e.value
}

// Alpha returns the smoothing factor
func (e *EMA) Alpha() decimal.Decimal {
	return e.alpha
}

// WindowSize returns the maximum number of ticks retained
func (e *EMA) WindowSize() int {
	return e.windowSize
}

// WindowLen returns the number of ticks currently retained
func (e *EMA) WindowLen() int {
	return e.window.Len()
}
