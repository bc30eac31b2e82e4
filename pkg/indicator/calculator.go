package indicator

import (
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/shopspring/decimal"
)

// Calculator is the interface for streaming average calculators.
// Each variant owns its window state and is not safe for concurrent use.
type Calculator interface {
	// Calculate consumes a tick and returns the updated average.
	// A paused calculator discards the tick and returns zero.
	Calculate(tick models.Tick) decimal.Decimal

	// Reset queues a state clear that is applied at the start of the next Calculate call
	Reset()

	// Cancel pauses the calculator until Resume is called
	Cancel()

	// Resume ends a pause; the next Calculate starts from an empty window
	Resume()
}

// WindowedCalculator extends Calculator with read-only inspection of the window
type WindowedCalculator interface {
	Calculator

	// WindowLen returns the number of ticks currently retained
	WindowLen() int

	// State returns the current lifecycle state
	State() State
}

// State is the lifecycle state of a calculator
type State int

const (
	// StateActive processes ticks against the current window
	StateActive State = iota
	// StatePendingReset clears the window before processing the next tick
	StatePendingReset
	// StatePaused discards ticks and returns zero
	StatePaused
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePendingReset:
		return "pending_reset"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// lifecycle implements the shared reset/cancel/resume state machine.
// Transitions are recorded here and resolved by the owning calculator
// at the start of each Calculate call.
type lifecycle struct {
	state State
}

// Reset queues a lazy reset. A paused calculator stays paused.
func (l *lifecycle) Reset() {
	if l.state == StateActive {
		l.state = StatePendingReset
	}
}

// Cancel pauses the calculator, overriding any queued reset
func (l *lifecycle) Cancel() {
	l.state = StatePaused
}

// Resume leaves the paused state with a queued reset so the next tick starts cold
func (l *lifecycle) Resume() {
	if l.state == StatePaused {
		l.state = StatePendingReset
	}
}

// State returns the current lifecycle state
func (l *lifecycle) State() State {
	return l.state
}

// begin resolves the lifecycle before a tick is processed.
// It reports whether the tick should be processed and whether the window must be cleared first.
func (l *lifecycle) begin() (process bool, clear bool) {
	switch l.state {
	case StatePaused:
		return false, false
	case StatePendingReset:
		l.state = StateActive
		return true, true
	default:
		return true, false
	}
}
