package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// definitionsFile is the YAML layout of AVERAGES_CONFIG_FILE:
//
//	calculators:
//	  - kind: sma
//	    window: 3
//	  - name: fast_ema
//	    kind: ema
//	    window: 3
//	    alpha: "0.75"
//	  - kind: twa
//	    duration: 5m
type definitionsFile struct {
	Calculators []definitionEntry `yaml:"calculators"`
}

type definitionEntry struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Window   int    `yaml:"window"`
	Alpha    string `yaml:"alpha"`
	Duration string `yaml:"duration"`
}

// LoadDefinitionsFile reads calculator definitions from a YAML file
func LoadDefinitionsFile(path string) ([]indicator.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions parses calculator definitions from YAML.
// Entries without a name get indicator.DefaultName.
func ParseDefinitions(data []byte) ([]indicator.Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse calculator definitions: %w", err)
	}

	defs := make([]indicator.Definition, 0, len(file.Calculators))
	for i, entry := range file.Calculators {
		def, err := entry.toDefinition()
		if err != nil {
			return nil, fmt.Errorf("calculator %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (e definitionEntry) toDefinition() (indicator.Definition, error) {
	def := indicator.Definition{
		Name:   strings.TrimSpace(e.Name),
		Kind:   indicator.Kind(strings.ToLower(strings.TrimSpace(e.Kind))),
		Window: e.Window,
	}

	if e.Alpha != "" {
		alpha, err := decimal.NewFromString(e.Alpha)
		if err != nil {
			return def, fmt.Errorf("invalid alpha %q: %w", e.Alpha, err)
		}
		def.Alpha = alpha
	}

	if e.Duration != "" {
		duration, err := time.ParseDuration(e.Duration)
		if err != nil {
			return def, fmt.Errorf("invalid duration %q: %w", e.Duration, err)
		}
		def.Duration = duration
	}

	if def.Name == "" {
		def.Name = indicator.DefaultName(def)
	}
	return def, nil
}

// ValidateDefinitions checks a calculator set before it is built
func ValidateDefinitions(defs []indicator.Definition) error {
	if len(defs) == 0 {
		return fmt.Errorf("at least one calculator must be configured")
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("calculator name cannot be empty")
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate calculator name %q", def.Name)
		}
		seen[def.Name] = true

		switch def.Kind {
		case indicator.KindSMA:
			if def.Window < 1 {
				return fmt.Errorf("calculator %q: window must be at least 1", def.Name)
			}
		case indicator.KindEMA:
			if def.Window < 1 {
				return fmt.Errorf("calculator %q: window must be at least 1", def.Name)
			}
			if !def.Alpha.IsPositive() || def.Alpha.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("calculator %q: alpha must be in (0, 1]", def.Name)
			}
		case indicator.KindTWA:
			if def.Duration <= 0 {
				return fmt.Errorf("calculator %q: duration must be positive", def.Name)
			}
		default:
			return fmt.Errorf("calculator %q: unknown kind %q", def.Name, def.Kind)
		}
	}
	return nil
}
