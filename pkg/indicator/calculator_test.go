package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calculatorCase struct {
	name string
	new  func(t *testing.T) WindowedCalculator
}

func allCalculators() []calculatorCase {
	return []calculatorCase{
		{
			name: "sma",
			new: func(t *testing.T) WindowedCalculator {
				c, err := NewSMA(3)
				require.NoError(t, err)
				return c
			},
		},
		{
			name: "ema",
			new: func(t *testing.T) WindowedCalculator {
				c, err := NewEMA(3, decimal.RequireFromString("0.75"))
				require.NoError(t, err)
				return c
			},
		},
		{
			name: "twa",
			new: func(t *testing.T) WindowedCalculator {
				c, err := NewTWA(5 * time.Minute)
				require.NoError(t, err)
				return c
			},
		},
	}
}

func TestCalculators_CancelReturnsZeroUntilResume(t *testing.T) {
	for _, tc := range allCalculators() {
		t.Run(tc.name, func(t *testing.T) {
			calc := tc.new(t)
			calculateAll(calc, ticksEverySecond("10", "20"))

			calc.Cancel()
			assert.Equal(t, StatePaused, calc.State())

			for _, v := range calculateAll(calc, ticksEverySecond("30", "40", "50")) {
				assert.True(t, v.IsZero(), "paused calculator returned %s", v)
			}

			calc.Resume()
			fresh := tc.new(t)
			tick := tickAt("70", baseTime.Add(time.Minute))
			assertDecimal(t, fresh.Calculate(tick).String(), calc.Calculate(tick))
			assert.Equal(t, 1, calc.WindowLen())
		})
	}
}

func TestCalculators_ResumeWithoutTicksStillStartsCold(t *testing.T) {
	for _, tc := range allCalculators() {
		t.Run(tc.name, func(t *testing.T) {
			calc := tc.new(t)
			calculateAll(calc, ticksEverySecond("10", "20", "30"))

			calc.Cancel()
			calc.Resume()
			assert.Equal(t, StatePendingReset, calc.State())

			fresh := tc.new(t)
			tick := tickAt("40", baseTime.Add(10*time.Second))
			assertDecimal(t, fresh.Calculate(tick).String(), calc.Calculate(tick))
		})
	}
}

func TestCalculators_ResetThenTickEqualsFreshCalculator(t *testing.T) {
	for _, tc := range allCalculators() {
		t.Run(tc.name, func(t *testing.T) {
			calc := tc.new(t)
			calculateAll(calc, ticksEverySecond("11", "23", "35", "47"))

			calc.Reset()

			fresh := tc.new(t)
			tick := tickAt("99.5", baseTime.Add(time.Minute))
			assertDecimal(t, fresh.Calculate(tick).String(), calc.Calculate(tick))
			assert.Equal(t, StateActive, calc.State())
		})
	}
}

func TestCalculators_ResetWhilePausedStaysPaused(t *testing.T) {
	for _, tc := range allCalculators() {
		t.Run(tc.name, func(t *testing.T) {
			calc := tc.new(t)
			calc.Cancel()
			calc.Reset()
			assert.Equal(t, StatePaused, calc.State())
			assert.True(t, calc.Calculate(tickAt("10", baseTime)).IsZero())

			// Cancel after a queued reset wins until resumed
			calc.Resume()
			calc.Reset()
			calc.Cancel()
			assert.Equal(t, StatePaused, calc.State())
		})
	}
}

func TestCalculators_ResumeWhileActiveIsNoop(t *testing.T) {
	for _, tc := range allCalculators() {
		t.Run(tc.name, func(t *testing.T) {
			calc := tc.new(t)
			calculateAll(calc, ticksEverySecond("10", "20"))

			calc.Resume()
			assert.Equal(t, StateActive, calc.State())
			assert.Equal(t, 2, calc.WindowLen())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "pending_reset", StatePendingReset.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(42).String())
}
