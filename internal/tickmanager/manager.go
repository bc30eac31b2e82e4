package tickmanager

import (
	"errors"
	"fmt"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
)

var (
	// ErrUnknownCalculator is returned when a listener is registered for a name with no calculator
	ErrUnknownCalculator = errors.New("unknown calculator")
	// ErrDuplicateCalculator is returned when two calculators share a name
	ErrDuplicateCalculator = errors.New("duplicate calculator name")
	// ErrInvalidCalculator is returned for an empty name or nil calculator
	ErrInvalidCalculator = errors.New("invalid calculator")
	// ErrNilListener is returned when registering a nil listener
	ErrNilListener = errors.New("listener cannot be nil")
)

// NamedCalculator pairs a calculator with the name its results are published under
type NamedCalculator struct {
	Name       string
	Calculator indicator.Calculator
}

// TickManager routes each tick to every calculator and forwards each result to
// the listeners registered under that calculator's name.
//
// Calculators are visited in construction order and listeners in registration
// order. TickManager does no locking; callers that feed it from several
// goroutines must serialize access (see internal/pipeline).
type TickManager struct {
	names       []string
	calculators map[string]indicator.Calculator
	listeners   map[string][]AverageListener
}

// New creates a TickManager over the given calculators.
// The listener table is derived from the calculator names.
func New(calculators ...NamedCalculator) (*TickManager, error) {
	m := &TickManager{
		names:       make([]string, 0, len(calculators)),
		calculators: make(map[string]indicator.Calculator, len(calculators)),
		listeners:   make(map[string][]AverageListener, len(calculators)),
	}

	for _, nc := range calculators {
		if nc.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidCalculator)
		}
		if nc.Calculator == nil {
			return nil, fmt.Errorf("%w: calculator %q is nil", ErrInvalidCalculator, nc.Name)
		}
		if _, exists := m.calculators[nc.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCalculator, nc.Name)
		}

		m.names = append(m.names, nc.Name)
		m.calculators[nc.Name] = nc.Calculator
		m.listeners[nc.Name] = make([]AverageListener, 0)
	}

	return m, nil
}

// NewFromDefinitions builds every definition with the registry and wraps them in a TickManager.
// Definitions without a name get indicator.DefaultName.
func NewFromDefinitions(registry *indicator.Registry, defs []indicator.Definition) (*TickManager, error) {
	calculators := make([]NamedCalculator, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			def.Name = indicator.DefaultName(def)
		}
		calc, err := registry.Build(def)
		if err != nil {
			return nil, err
		}
		calculators = append(calculators, NamedCalculator{Name: def.Name, Calculator: calc})
	}
	return New(calculators...)
}

// AddListener registers a listener for the calculator with the given name
func (m *TickManager) AddListener(name string, listener AverageListener) error {
	if listener == nil {
		return ErrNilListener
	}

	if _, exists := m.listeners[name]; !exists {
		return fmt.Errorf("%w: %q", ErrUnknownCalculator, name)
	}

	m.listeners[name] = append(m.listeners[name], listener)

	logger.Debug("Listener registered",
		logger.String("calculator", name),
		logger.Int("listener_count", len(m.listeners[name])),
	)
	return nil
}

// OnTick computes every calculator's value for the tick and notifies its listeners
func (m *TickManager) OnTick(tick models.Tick) {
	for _, name := range m.names {
		calc := m.calculators[name]
		value := calc.Calculate(tick)

		averagesComputed.WithLabelValues(name).Inc()
		latestAverage.WithLabelValues(name).Set(value.InexactFloat64())
		if wc, ok := calc.(indicator.WindowedCalculator); ok {
			windowLength.WithLabelValues(name).Set(float64(wc.WindowLen()))
		}

		for _, listener := range m.listeners[name] {
			listener.OnAverage(name, value)
		}
		notificationsSent.WithLabelValues(name).Add(float64(len(m.listeners[name])))
	}
	ticksProcessed.Inc()
}

// OnTicks processes ticks in order
func (m *TickManager) OnTicks(ticks []models.Tick) {
	for _, tick := range ticks {
		m.OnTick(tick)
	}
}

// OnCancel pauses every calculator
func (m *TickManager) OnCancel() {
	for _, name := range m.names {
		m.calculators[name].Cancel()
	}
	m.recordControl("cancel")
}

// OnResume resumes every calculator
func (m *TickManager) OnResume() {
	for _, name := range m.names {
		m.calculators[name].Resume()
	}
	m.recordControl("resume")
}

// OnReset queues a reset on every calculator
func (m *TickManager) OnReset() {
	for _, name := range m.names {
		m.calculators[name].Reset()
	}
	m.recordControl("reset")
}

// Names returns the calculator names in dispatch order
func (m *TickManager) Names() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// ListenerCount returns the number of listeners registered for a calculator
func (m *TickManager) ListenerCount(name string) int {
	return len(m.listeners[name])
}

func (m *TickManager) recordControl(operation string) {
	controlOperations.WithLabelValues(operation).Inc()
	logger.Info("Broadcast control operation",
		logger.String("operation", operation),
		logger.Int("calculators", len(m.names)),
	)
}
