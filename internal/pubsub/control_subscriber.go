package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mohamedkhairy/tick-averager/internal/storage"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
)

// Controller receives lifecycle commands
type Controller interface {
	Cancel() error
	Resume() error
	Reset() error
}

// ControlSubscriber applies cancel/resume/reset commands published on a Redis channel.
// Payloads may be a bare action ("reset"), a JSON string ("\"reset\"")
// or a JSON object ({"action":"reset"}).
type ControlSubscriber struct {
	redis      storage.Subscriber
	channel    string
	controller Controller
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
}

// NewControlSubscriber creates a subscriber for channel
func NewControlSubscriber(redis storage.Subscriber, channel string, controller Controller) *ControlSubscriber {
	return &ControlSubscriber{
		redis:      redis,
		channel:    channel,
		controller: controller,
	}
}

// Start subscribes to the control channel
func (s *ControlSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("control subscriber is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	messages, err := s.redis.Subscribe(ctx, s.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to control channel %s: %w", s.channel, err)
	}
	s.cancel = cancel

	logger.Info("Listening for control commands", logger.String("channel", s.channel))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range messages {
			if err := s.Apply(msg.Message); err != nil {
				logger.Warn("Ignoring control message",
					logger.ErrorField(err),
					logger.String("channel", msg.Channel),
				)
			}
		}
	}()

	return nil
}

// Apply parses a payload and forwards the command
func (s *ControlSubscriber) Apply(payload string) error {
	action, err := ParseControlAction(payload)
	if err != nil {
		return err
	}

	logger.Info("Applying control command", logger.String("action", action))

	switch action {
	case "cancel":
		return s.controller.Cancel()
	case "resume":
		return s.controller.Resume()
	default:
		return s.controller.Reset()
	}
}

// Stop unsubscribes and waits for the reader to exit
func (s *ControlSubscriber) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// ParseControlAction extracts and validates the action from a payload
func ParseControlAction(payload string) (string, error) {
	payload = strings.TrimSpace(payload)

	var action string
	var envelope struct {
		Action string `json:"action"`
	}

	switch {
	case strings.HasPrefix(payload, "{"):
		if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
			return "", fmt.Errorf("invalid control message: %w", err)
		}
		action = envelope.Action
	case strings.HasPrefix(payload, `"`):
		if err := json.Unmarshal([]byte(payload), &action); err != nil {
			return "", fmt.Errorf("invalid control message: %w", err)
		}
	default:
		action = payload
	}

	action = strings.ToLower(strings.TrimSpace(action))
	switch action {
	case "cancel", "resume", "reset":
		return action, nil
	default:
		return "", fmt.Errorf("unknown control action %q", action)
	}
}
