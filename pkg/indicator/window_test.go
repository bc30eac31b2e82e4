package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickWindow_FIFO(t *testing.T) {
	w := newTickWindow(2)

	_, ok := w.Front()
	assert.False(t, ok)
	_, ok = w.PopFront()
	assert.False(t, ok)

	for _, tick := range ticksEverySecond("1", "2", "3", "4", "5") {
		w.PushBack(tick)
	}
	require.Equal(t, 5, w.Len())

	for _, want := range []string{"1", "2", "3"} {
		tick, ok := w.PopFront()
		require.True(t, ok)
		assertDecimal(t, want, tick.Price)
	}

	w.PushBack(tickAt("6", baseTime))
	require.Equal(t, 3, w.Len())

	front, ok := w.Front()
	require.True(t, ok)
	assertDecimal(t, "4", front.Price)

	for _, want := range []string{"4", "5", "6"} {
		tick, ok := w.PopFront()
		require.True(t, ok)
		assertDecimal(t, want, tick.Price)
	}
	assert.Equal(t, 0, w.Len())
}

func TestTickWindow_ReclaimsHead(t *testing.T) {
	w := newTickWindow(4)

	for i := 0; i < 1000; i++ {
		w.PushBack(tickAt("1", baseTime))
		if w.Len() > 3 {
			w.PopFront()
		}
	}

	assert.Equal(t, 3, w.Len())
	assert.LessOrEqual(t, cap(w.ticks), 16)
}

func TestTickWindow_Clear(t *testing.T) {
	w := newTickWindow(4)
	for _, tick := range ticksEverySecond("1", "2", "3") {
		w.PushBack(tick)
	}
	w.PopFront()

	w.Clear()
	assert.Equal(t, 0, w.Len())
	_, ok := w.Front()
	assert.False(t, ok)
}
