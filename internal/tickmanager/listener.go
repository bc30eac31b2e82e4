package tickmanager

import (
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

// AverageListener receives every value computed by the calculator it is registered with
type AverageListener interface {
	OnAverage(name string, value decimal.Decimal)
}

// AverageListenerFunc adapts a function to AverageListener
type AverageListenerFunc func(name string, value decimal.Decimal)

// OnAverage calls f(name, value)
func (f AverageListenerFunc) OnAverage(name string, value decimal.Decimal) {
	f(name, value)
}

// TickListener is the surface a tick source drives
type TickListener interface {
	// OnTick processes a single tick
	OnTick(tick models.Tick)

	// OnTicks processes ticks in order, exactly as repeated OnTick calls
	OnTicks(ticks []models.Tick)

	// OnCancel pauses every calculator; ticks are ignored until OnResume
	OnCancel()

	// OnResume ends a pause; calculations restart from the first tick received afterwards
	OnResume()

	// OnReset restarts every calculator from the next tick
	OnReset()
}
