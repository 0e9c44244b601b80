// Package notifier fans alert firing/resolve events out to configured
// notification channels (Slack, Email, PagerDuty, Teams, generic webhook).
// Each channel's config is decrypted at send time; one channel's failure
// never blocks delivery to the others, and there is no in-package retry.
package notifier

import (
	"context"
	"log/slog"

	"github.com/pulsegrid/controlplane/internal/cryptoseal"
	"github.com/pulsegrid/controlplane/pkg/alert"
)

// Message is the platform-agnostic shape every Provider renders, grounded on
// the teacher's messaging.AlertMessage.
type Message struct {
	AlertID     string
	Title       string
	Description string
	Severity    string
	Action      string // "firing" or "resolved"
	Service     string
	MetricValue float64
}

// Provider sends a rendered Message to one channel kind, grounded on the
// teacher's messaging.Provider interface.
type Provider interface {
	// Kind returns the alert.ChannelKind this provider handles.
	Kind() alert.ChannelKind
	// Send delivers msg using the channel's decrypted config.
	Send(ctx context.Context, config map[string]any, msg Message) error
}

// Registry holds all available notification providers, grounded on the
// teacher's messaging.Registry.
type Registry struct {
	providers map[alert.ChannelKind]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[alert.ChannelKind]Provider)}
}

// Register adds a provider to the registry, keyed by its Kind().
func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
}

// Dispatcher implements alert.Notifier: it decrypts each channel's sealed
// config and sends the alert to every configured channel, one after another,
// isolating per-channel failures.
type Dispatcher struct {
	registry *Registry
	sealer   *cryptoseal.Sealer
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, sealer *cryptoseal.Sealer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, sealer: sealer, logger: logger}
}

// NotifyAlert implements alert.Notifier. A channel whose provider is
// unregistered, whose config fails to decrypt, or whose Send returns an
// error is logged and skipped; it never stops delivery to the remaining
// channels.
func (d *Dispatcher) NotifyAlert(ctx context.Context, channels []alert.NotificationChannel, sealedConfigs []string, action string, a alert.ActiveAlert, condition alert.AlertCondition) {
	msg := Message{
		AlertID:     a.ID.String(),
		Title:       a.Title,
		Description: a.Description,
		Severity:    string(a.Severity),
		Action:      action,
		Service:     condition.Service,
		MetricValue: a.MetricValue,
	}

	for i, ch := range channels {
		if i >= len(sealedConfigs) {
			continue
		}
		d.dispatchOne(ctx, ch, sealedConfigs[i], msg)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ch alert.NotificationChannel, sealedConfig string, msg Message) {
	provider, ok := d.registry.providers[ch.Kind]
	if !ok {
		d.logger.Warn("no provider registered for channel kind", "channel_id", ch.ID, "kind", ch.Kind)
		return
	}

	config, err := decryptConfig(d.sealer, sealedConfig)
	if err != nil {
		d.logger.Error("decrypting channel config", "channel_id", ch.ID, "error", err)
		return
	}

	if err := provider.Send(ctx, config, msg); err != nil {
		d.logger.Error("sending alert notification", "channel_id", ch.ID, "kind", ch.Kind, "error", err)
	}
}
