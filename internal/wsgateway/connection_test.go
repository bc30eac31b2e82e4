package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(id, userID string) *Connection {
	return NewConnection(id, userID, nil)
}

func readServerMessage(t *testing.T, conn *Connection) ServerMessage {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("expected a queued message")
		return ServerMessage{}
	}
}

func TestConnection_SubscribeUnsubscribe(t *testing.T) {
	conn := newTestConnection("conn-1", "user-1")

	conn.Subscribe("sma_3")
	assert.True(t, conn.IsSubscribed("sma_3"))

	conn.Unsubscribe("sma_3")
	assert.False(t, conn.IsSubscribed("sma_3"))
}

func TestConnection_ShouldReceive(t *testing.T) {
	conn := newTestConnection("conn-1", "user-1")

	// No subscriptions means every calculator
	assert.True(t, conn.ShouldReceive("sma_3"))
	assert.True(t, conn.ShouldReceive("ema_3_0.75"))

	conn.Subscribe("sma_3")
	assert.True(t, conn.ShouldReceive("sma_3"))
	assert.False(t, conn.ShouldReceive("ema_3_0.75"))
}

func TestConnection_UpdateLastPong(t *testing.T) {
	conn := newTestConnection("conn-1", "user-1")
	conn.lastPong = time.Now().Add(-time.Hour)

	initial := conn.GetLastPong()
	conn.UpdateLastPong()

	assert.True(t, conn.GetLastPong().After(initial))
}

func TestConnection_Enqueue(t *testing.T) {
	conn := newTestConnection("conn-1", "user-1")
	conn.Send = make(chan []byte, 1)

	require.NoError(t, conn.Enqueue([]byte("a")))
	assert.ErrorIs(t, conn.Enqueue([]byte("b")), ErrSendBufferFull)

	conn.Close()
	conn.Close()
	assert.ErrorIs(t, conn.Enqueue([]byte("c")), ErrConnectionClosed)

	select {
	case <-conn.Done():
	default:
		t.Fatal("expected done to be closed")
	}
}

func TestConnection_HandleClientMessage(t *testing.T) {
	known := func(name string) bool { return name == "sma_3" || name == "twa_5m" }

	t.Run("subscribe", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		err := conn.HandleClientMessage(&ClientMessage{
			Type:        "subscribe",
			Calculator:  "sma_3",
			Calculators: []string{"twa_5m"},
		}, known)
		require.NoError(t, err)

		assert.True(t, conn.IsSubscribed("sma_3"))
		assert.True(t, conn.IsSubscribed("twa_5m"))
		assert.Equal(t, MessageTypeSuccess, readServerMessage(t, conn).Type)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		conn.Subscribe("sma_3")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "unsubscribe", Calculator: "sma_3"}, known))

		assert.False(t, conn.IsSubscribed("sma_3"))
		msg := readServerMessage(t, conn)
		assert.Equal(t, MessageTypeSuccess, msg.Type)
		assert.Equal(t, "unsubscribed", msg.Data.(map[string]interface{})["action"])
	})

	t.Run("unknown calculator", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe", Calculator: "wma_3"}, known))

		assert.False(t, conn.IsSubscribed("wma_3"))
		msg := readServerMessage(t, conn)
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Equal(t, "unknown_calculator", msg.Code)
	})

	t.Run("any name without a known set", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe", Calculator: "wma_3"}, nil))
		assert.True(t, conn.IsSubscribed("wma_3"))
	})

	t.Run("missing calculator", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe"}, known))
		assert.Equal(t, "invalid_request", readServerMessage(t, conn).Code)
	})

	t.Run("ping", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "ping"}, known))
		assert.Equal(t, MessageTypePong, readServerMessage(t, conn).Type)
	})

	t.Run("unknown type", func(t *testing.T) {
		conn := newTestConnection("conn-1", "user-1")
		require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "bogus"}, known))
		assert.Equal(t, "unknown_message_type", readServerMessage(t, conn).Code)
	})
}

func TestConnection_SendAverage(t *testing.T) {
	conn := newTestConnection("conn-1", "user-1")
	emitted := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, conn.SendAverage(AverageUpdate{
		Calculator: "sma_3",
		Value:      decimal.RequireFromString("101.5"),
		EmittedAt:  emitted,
	}))

	data := <-conn.Send
	assert.JSONEq(t,
		`{"type":"average","data":{"calculator":"sma_3","value":"101.5","emitted_at":"2024-01-02T03:04:05Z"}}`,
		string(data))
}
