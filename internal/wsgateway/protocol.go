package wsgateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeAverage     MessageType = "average"
	MessageTypeSuccess     MessageType = "success"
	MessageTypeError       MessageType = "error"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type        string   `json:"type"`
	Calculator  string   `json:"calculator,omitempty"`
	Calculators []string `json:"calculators,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AverageUpdate is the payload of an average message
type AverageUpdate struct {
	Calculator string          `json:"calculator"`
	Value      decimal.Decimal `json:"value"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// HandleClientMessage handles a message from the client.
// known reports whether a calculator name exists; nil accepts any name.
func (c *Connection) HandleClientMessage(msg *ClientMessage, known func(string) bool) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		names := msg.Calculators
		if msg.Calculator != "" {
			names = append([]string{msg.Calculator}, names...)
		}
		if len(names) == 0 {
			return c.SendError("invalid_request", "calculator or calculators field required")
		}
		if known != nil {
			for _, name := range names {
				if !known(name) {
					return c.SendError("unknown_calculator", fmt.Sprintf("unknown calculator: %s", name))
				}
			}
		}

		action := "subscribed"
		for _, name := range names {
			if MessageType(msg.Type) == MessageTypeSubscribe {
				c.Subscribe(name)
			} else {
				c.Unsubscribe(name)
				action = "unsubscribed"
			}
		}

		logger.Debug("Client subscription changed",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.String("action", action),
			logger.Int("count", len(names)),
		)
		return c.SendSuccess(action, map[string]interface{}{"calculators": names})

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// SendSuccess sends a success message to the client
func (c *Connection) SendSuccess(action string, data interface{}) error {
	return c.sendJSON(ServerMessage{
		Type: MessageTypeSuccess,
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	})
}

// SendPong sends a pong message to the client
func (c *Connection) SendPong() error {
	return c.sendJSON(ServerMessage{Type: MessageTypePong})
}

// SendError sends an error message to the client
func (c *Connection) SendError(code string, message string) error {
	return c.sendJSON(ServerMessage{
		Type:    MessageTypeError,
		Code:    code,
		Message: message,
	})
}

// SendAverage queues an average update for the client
func (c *Connection) SendAverage(update AverageUpdate) error {
	return c.sendJSON(ServerMessage{
		Type: MessageTypeAverage,
		Data: update,
	})
}

func (c *Connection) sendJSON(message ServerMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.Enqueue(data)
}
