package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Generic(t *testing.T) {
	normalizer := NewNormalizer("")
	assert.Equal(t, "generic", normalizer.GetFormat())

	tick, err := normalizer.Normalize([]byte(`{"price": 150.125, "timestamp": "2024-03-01T09:30:00Z"}`))
	require.NoError(t, err)

	assert.Equal(t, "150.125", tick.Price.String())
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), tick.Timestamp)
}

func TestNormalizer_KeepsDecimalPrecision(t *testing.T) {
	normalizer := NewNormalizer("generic")

	tick, err := normalizer.Normalize([]byte(`{"p": 0.1000000000000000055511, "t": 1709285400}`))
	require.NoError(t, err)
	assert.Equal(t, "0.1000000000000000055511", tick.Price.String())

	tick, err = normalizer.Normalize([]byte(`{"price": "42.10", "ts": 1709285400}`))
	require.NoError(t, err)
	assert.Equal(t, "42.1", tick.Price.String())
}

func TestNormalizer_EpochUnits(t *testing.T) {
	normalizer := NewNormalizer("generic")
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	for _, ts := range []string{"1709285400", "1709285400000", "1709285400000000", "1709285400000000000"} {
		tick, err := normalizer.Normalize([]byte(`{"price": 10, "t": ` + ts + `}`))
		require.NoError(t, err, ts)
		assert.Equal(t, want, tick.Timestamp, ts)
	}
}

func TestNormalizer_MissingTimestampUsesNow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	normalizer := &DefaultNormalizer{format: "generic", now: func() time.Time { return now }}

	tick, err := normalizer.Normalize([]byte(`{"price": 10}`))
	require.NoError(t, err)
	assert.Equal(t, now, tick.Timestamp)
}

func TestNormalizer_AlpacaTrade(t *testing.T) {
	normalizer := NewNormalizer("alpaca")

	tick, err := normalizer.Normalize([]byte(`{"T":"t","S":"AAPL","p":150.5,"s":100,"t":"2023-01-01T12:00:00.123456Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "150.5", tick.Price.String())
	assert.Equal(t, 123456000, tick.Timestamp.Nanosecond())

	_, err = normalizer.Normalize([]byte(`{"T":"q","S":"AAPL","ap":150.5}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalizer_PolygonTrade(t *testing.T) {
	normalizer := NewNormalizer("polygon")

	tick, err := normalizer.Normalize([]byte(`{"ev":"T","sym":"AAPL","p":99.99,"s":10,"t":1672574400000}`))
	require.NoError(t, err)
	assert.Equal(t, "99.99", tick.Price.String())
	assert.Equal(t, time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC), tick.Timestamp)

	_, err = normalizer.Normalize([]byte(`{"ev":"Q","sym":"AAPL"}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		message string
		wantErr error
	}{
		{"empty", "generic", ``, ErrInvalidMessage},
		{"not json", "generic", `price=10`, ErrUnsupportedFormat},
		{"json array", "generic", `[1, 2]`, ErrUnsupportedFormat},
		{"missing price", "generic", `{"timestamp": "2024-03-01T09:30:00Z"}`, ErrInvalidMessage},
		{"bad price", "generic", `{"price": "ten"}`, ErrInvalidMessage},
		{"zero price", "generic", `{"price": 0}`, ErrInvalidMessage},
		{"negative price", "generic", `{"price": -1}`, ErrInvalidMessage},
		{"unknown format", "csv", `{"price": 1}`, ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer(tt.format).Normalize([]byte(tt.message))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeBatch(t *testing.T) {
	messages := [][]byte{
		[]byte(`{"price": 10, "t": 1709285400}`),
		[]byte(`{"price": "bad"}`),
		[]byte(`{"price": 11, "t": 1709285401}`),
	}

	ticks, errs := NormalizeBatch(NewNormalizer("generic"), messages)
	require.Len(t, ticks, 2)
	assert.Len(t, errs, 1)
	assert.Equal(t, "11", ticks[1].Price.String())
}
