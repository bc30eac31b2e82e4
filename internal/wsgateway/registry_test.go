package wsgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_AddRemove(t *testing.T) {
	registry := NewConnectionRegistry()
	registry.Add(newTestConnection("conn-1", "user-1"))

	retrieved, exists := registry.Get("conn-1")
	require.True(t, exists)
	assert.Equal(t, "conn-1", retrieved.ID)
	assert.Equal(t, 1, registry.Count())

	assert.True(t, registry.Remove("conn-1"))
	assert.False(t, registry.Remove("conn-1"))

	_, exists = registry.Get("conn-1")
	assert.False(t, exists)
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.GetByUser("user-1"))
}

func TestConnectionRegistry_GetByUser(t *testing.T) {
	registry := NewConnectionRegistry()
	registry.Add(newTestConnection("conn-1", "user-1"))
	registry.Add(newTestConnection("conn-2", "user-1"))
	registry.Add(newTestConnection("conn-3", "user-2"))

	assert.Len(t, registry.GetByUser("user-1"), 2)
	assert.Len(t, registry.GetByUser("user-2"), 1)
	assert.Empty(t, registry.GetByUser("user-3"))
	assert.Len(t, registry.GetAll(), 3)
}

func TestConnectionRegistry_Subscribers(t *testing.T) {
	registry := NewConnectionRegistry()

	all := newTestConnection("conn-1", "user-1")
	sma := newTestConnection("conn-2", "user-1")
	sma.Subscribe("sma_3")
	ema := newTestConnection("conn-3", "user-2")
	ema.Subscribe("ema_3_0.75")

	registry.Add(all)
	registry.Add(sma)
	registry.Add(ema)

	ids := func(conns []*Connection) []string {
		out := make([]string, 0, len(conns))
		for _, c := range conns {
			out = append(out, c.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, ids(registry.Subscribers("sma_3")))
	assert.ElementsMatch(t, []string{"conn-1", "conn-3"}, ids(registry.Subscribers("ema_3_0.75")))
	assert.ElementsMatch(t, []string{"conn-1"}, ids(registry.Subscribers("twa_5m")))
}
