package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedFormat is returned when the message format is not supported
	ErrUnsupportedFormat = errors.New("unsupported message format")
	// ErrInvalidMessage is returned when the message cannot be parsed
	ErrInvalidMessage = errors.New("invalid message")
)

// Normalizer converts raw upstream messages to ticks
type Normalizer interface {
	// Normalize converts a raw message to a Tick
	Normalize(rawMessage []byte) (*models.Tick, error)

	// GetFormat returns the message format this normalizer handles
	GetFormat() string
}

// DefaultNormalizer handles the generic, alpaca and polygon JSON layouts
type DefaultNormalizer struct {
	format string
	now    func() time.Time
}

// NewNormalizer creates a new normalizer for the given format
func NewNormalizer(format string) Normalizer {
	if format == "" {
		format = "generic"
	}
	return &DefaultNormalizer{
		format: strings.ToLower(format),
		now:    time.Now,
	}
}

// GetFormat returns the format name
func (n *DefaultNormalizer) GetFormat() string {
	return n.format
}

// Normalize converts a raw message to a Tick.
// Numbers are decoded as json.Number so prices keep their exact decimal text.
func (n *DefaultNormalizer) Normalize(rawMessage []byte) (*models.Tick, error) {
	if len(rawMessage) == 0 {
		return nil, ErrInvalidMessage
	}

	decoder := json.NewDecoder(bytes.NewReader(rawMessage))
	decoder.UseNumber()

	var data map[string]interface{}
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: message is not a JSON object", ErrUnsupportedFormat)
	}

	var priceFields, timestampFields []string
	switch n.format {
	case "alpaca":
		// {"T":"t","S":"AAPL","p":150.5,"s":100,"t":"2023-01-01T12:00:00Z"}
		if msgType, ok := data["T"].(string); ok && msgType != "t" {
			return nil, fmt.Errorf("%w: not a trade message (T=%s)", ErrUnsupportedFormat, msgType)
		}
		priceFields = []string{"p"}
		timestampFields = []string{"t"}
	case "polygon":
		// {"ev":"T","sym":"AAPL","p":150.5,"s":100,"t":1672574400000}
		if ev, ok := data["ev"].(string); ok && ev != "T" {
			return nil, fmt.Errorf("%w: not a trade message (ev=%s)", ErrUnsupportedFormat, ev)
		}
		priceFields = []string{"p"}
		timestampFields = []string{"t"}
	case "generic":
		priceFields = []string{"price", "p", "last", "close"}
		timestampFields = []string{"timestamp", "t", "time", "ts"}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, n.format)
	}

	price, err := findPrice(data, priceFields)
	if err != nil {
		return nil, err
	}

	timestamp, found := findTimestamp(data, timestampFields)
	if !found {
		timestamp = n.now().UTC()
	}

	tick := models.NewTick(price, timestamp)
	if err := tick.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return &tick, nil
}

func findPrice(data map[string]interface{}, fields []string) (decimal.Decimal, error) {
	for _, field := range fields {
		switch val := data[field].(type) {
		case json.Number:
			return parsePrice(val.String())
		case string:
			return parsePrice(val)
		}
	}
	return decimal.Zero, fmt.Errorf("%w: missing price", ErrInvalidMessage)
}

func parsePrice(text string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid price: %v", ErrInvalidMessage, err)
	}
	return price, nil
}

func findTimestamp(data map[string]interface{}, fields []string) (time.Time, bool) {
	for _, field := range fields {
		switch val := data[field].(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, val); err == nil {
				return parsed.UTC(), true
			}
		case json.Number:
			if n, err := val.Int64(); err == nil {
				return unixTime(n), true
			}
		}
	}
	return time.Time{}, false
}

// unixTime interprets an epoch number by magnitude: seconds, millis, micros or nanos
func unixTime(n int64) time.Time {
	switch {
	case n < 1e11:
		return time.Unix(n, 0).UTC()
	case n < 1e14:
		return time.UnixMilli(n).UTC()
	case n < 1e17:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

// NormalizeBatch normalizes multiple messages in batch
func NormalizeBatch(normalizer Normalizer, messages [][]byte) ([]*models.Tick, []error) {
	ticks := make([]*models.Tick, 0, len(messages))
	errs := make([]error, 0)

	for _, msg := range messages {
		tick, err := normalizer.Normalize(msg)
		if err != nil {
			logger.Warn("Failed to normalize message",
				logger.ErrorField(err),
				logger.String("format", normalizer.GetFormat()),
			)
			errs = append(errs, err)
			continue
		}
		ticks = append(ticks, tick)
	}

	return ticks, errs
}
