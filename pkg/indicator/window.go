package indicator

import (
	"github.com/mohamedkhairy/tick-averager/internal/models"
)

// tickWindow is an oldest-first deque of ticks backed by a slice.
// Popped slots at the head are reclaimed once they make up half of the backing array.
type tickWindow struct {
	ticks []models.Tick
	head  int
}

func newTickWindow(capacity int) *tickWindow {
	return &tickWindow{
		ticks: make([]models.Tick, 0, capacity),
	}
}

// Len returns the number of retained ticks
func (w *tickWindow) Len() int {
	return len(w.ticks) - w.head
}

// PushBack appends a tick at the tail
func (w *tickWindow) PushBack(tick models.Tick) {
	w.ticks = append(w.ticks, tick)
}

// Front returns the oldest tick; ok is false when the window is empty
func (w *tickWindow) Front() (models.Tick, bool) {
	if w.Len() == 0 {
		return models.Tick{}, false
	}
	return w.ticks[w.head], true
}

// PopFront removes and returns the oldest tick; ok is false when the window is empty
func (w *tickWindow) PopFront() (models.Tick, bool) {
	if w.Len() == 0 {
		return models.Tick{}, false
	}

	tick := w.ticks[w.head]
	w.ticks[w.head] = models.Tick{}
	w.head++

	if w.head == len(w.ticks) {
		w.ticks = w.ticks[:0]
		w.head = 0
	} else if w.head >= cap(w.ticks)/2 {
		n := copy(w.ticks, w.ticks[w.head:])
		for i := n; i < len(w.ticks); i++ {
			w.ticks[i] = models.Tick{}
		}
		w.ticks = w.ticks[:n]
		w.head = 0
	}

	return tick, true
}

// Clear drops every retained tick
func (w *tickWindow) Clear() {
	for i := range w.ticks {
		w.ticks[i] = models.Tick{}
	}
	w.ticks = w.ticks[:0]
	w.head = 0
}
