package indicator

import (
	"testing"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var baseTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func tickAt(price string, ts time.Time) models.Tick {
	return models.NewTick(decimal.RequireFromString(price), ts)
}

// ticksEverySecond builds ticks one second apart starting at baseTime
func ticksEverySecond(prices ...string) []models.Tick {
	ticks := make([]models.Tick, len(prices))
	for i, p := range prices {
		ticks[i] = tickAt(p, baseTime.Add(time.Duration(i)*time.Second))
	}
	return ticks
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	expected := decimal.RequireFromString(want)
	assert.Truef(t, expected.Equal(got), "expected %s, got %s %v", expected, got, msgAndArgs)
}

func calculateAll(calc Calculator, ticks []models.Tick) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ticks))
	for i, tick := range ticks {
		out[i] = calc.Calculate(tick)
	}
	return out
}
