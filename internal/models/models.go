package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick represents a single timestamped price observation.
// Ticks are passed by value and never mutated after construction.
type Tick struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTick creates a tick from a price and timestamp
func NewTick(price decimal.Decimal, timestamp time.Time) Tick {
	return Tick{
		Price:     price,
		Timestamp: timestamp,
	}
}

// Validate validates a Tick
func (t Tick) Validate() error {
	if !t.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if t.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// AverageEvent represents a computed average published to downstream consumers
type AverageEvent struct {
	ID         string          `json:"id"`
	Calculator string          `json:"calculator"`
	Value      decimal.Decimal `json:"value"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// Validate validates an AverageEvent
func (e *AverageEvent) Validate() error {
	if e.ID == "" {
		return ErrInvalidEventID
	}
	if e.Calculator == "" {
		return ErrInvalidCalculator
	}
	if e.EmittedAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
