package indicator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies a calculator variant
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
	KindTWA Kind = "twa"
)

// Definition describes a named calculator to construct
type Definition struct {
	Name     string
	Kind     Kind
	Window   int             // sma, ema
	Alpha    decimal.Decimal // ema
	Duration time.Duration   // twa
}

// DefaultName returns the conventional name for a definition (e.g., "sma_20", "ema_3_0.75", "twa_5m")
func DefaultName(def Definition) string {
	switch def.Kind {
	case KindSMA:
		return fmt.Sprintf("sma_%d", def.Window)
	case KindEMA:
		return fmt.Sprintf("ema_%d_%s", def.Window, def.Alpha.String())
	case KindTWA:
		return fmt.Sprintf("twa_%s", formatDuration(def.Duration))
	default:
		return string(def.Kind)
	}
}

// Factory creates a calculator from a definition
type Factory func(def Definition) (Calculator, error)

// Registry maps calculator kinds to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates a registry with the built-in SMA, EMA and TWA factories
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[Kind]Factory),
	}

	r.factories[KindSMA] = func(def Definition) (Calculator, error) {
		return NewSMA(def.Window)
	}
	r.factories[KindEMA] = func(def Definition) (Calculator, error) {
		return NewEMA(def.Window, def.Alpha)
	}
	r.factories[KindTWA] = func(def Definition) (Calculator, error) {
		return NewTWA(def.Duration)
	}

	return r
}

// Register registers a factory for a calculator kind
func (r *Registry) Register(kind Kind, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("calculator kind cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for kind %q cannot be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("calculator kind %q already registered", kind)
	}

	r.factories[kind] = factory
	return nil
}

// Build constructs a calculator from a definition
func (r *Registry) Build(def Definition) (Calculator, error) {
	r.mu.RLock()
	factory, exists := r.factories[def.Kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown calculator kind %q", def.Kind)
	}

	calc, err := factory(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s calculator %q: %w", def.Kind, def.Name, err)
	}
	return calc, nil
}

// Kinds returns the registered calculator kinds in sorted order
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
