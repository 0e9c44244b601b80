// Package bus wraps Redis pub/sub as the module's Event Bus: fixed channels
// (incidents, hypotheses, alerts, notifications, system) carrying a uniform
// envelope.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel names the fixed Event Bus topics.
type Channel string

const (
	ChannelIncidents     Channel = "incidents"
	ChannelHypotheses    Channel = "hypotheses"
	ChannelAlerts        Channel = "alerts"
	ChannelNotifications Channel = "notifications"
	ChannelSystem        Channel = "system"
)

// Event types published on the bus.
const (
	EventIncidentCreated     = "incident.created"
	EventIncidentUpdated     = "incident.updated"
	EventHypothesisGenerated = "hypothesis.generated"
	EventAlertFiring         = "alert.firing"
	EventAlertResolved       = "alert.resolved"
)

// Event is the uniform envelope carried on every channel.
type Event struct {
	Channel   Channel         `json:"channel"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"`
}

const keyPrefix = "pulsegrid:bus:"

// Bus publishes and subscribes to Event Bus channels over Redis.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Bus.
func New(rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

func topicKey(ch Channel) string {
	return keyPrefix + string(ch)
}

// Publish serializes data into an Event and publishes it on ch. Publish
// failures are a non-critical side effect: they are logged and swallowed so
// the caller's primary operation still succeeds.
func (b *Bus) Publish(ctx context.Context, ch Channel, eventType string, tenantID uuid.UUID, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("marshaling event payload", "channel", ch, "type", eventType, "error", err)
		return
	}

	evt := Event{
		Channel:   ch,
		Type:      eventType,
		Data:      payload,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("marshaling event envelope", "channel", ch, "error", err)
		return
	}

	if err := b.rdb.Publish(ctx, topicKey(ch), raw).Err(); err != nil {
		b.logger.Warn("publishing event", "channel", ch, "type", eventType, "error", err)
	}
}

// Subscription wraps a Redis pub/sub subscription on one or more channels.
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe opens a subscription to the given channels. Call Close when done.
func (b *Bus) Subscribe(ctx context.Context, channels ...Channel) *Subscription {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = topicKey(c)
	}
	return &Subscription{ps: b.rdb.Subscribe(ctx, names...)}
}

// Events returns a channel of decoded Events. Malformed messages are dropped
// and logged rather than closing the subscription.
func (s *Subscription) Events(logger *slog.Logger) <-chan Event {
	out := make(chan Event, 64)
	raw := s.ps.Channel()

	go func() {
		defer close(out)
		for msg := range raw {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.Warn("decoding bus event", "channel", msg.Channel, "error", err)
				continue
			}
			out <- evt
		}
	}()

	return out
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
