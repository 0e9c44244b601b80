package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/bus"
	"github.com/pulsegrid/controlplane/pkg/metricstore"
)

// Engine is a background worker that periodically evaluates every enabled
// AlertCondition against its derived SLI and reconciles firing state.
// Grounded on the teacher's escalation.Engine Run-loop shape, but evaluates
// conditions directly by (tenant_id, project_id) columns rather than
// switching Postgres search_path per tenant.
type Engine struct {
	store    *Store
	metrics  *metricstore.Store
	notifier Notifier
	bus      *bus.Bus
	logger   *slog.Logger
	interval time.Duration
}

// Notifier is the minimal surface the engine needs from pkg/notifier,
// avoiding a direct package dependency cycle.
type Notifier interface {
	NotifyAlert(ctx context.Context, channels []NotificationChannel, sealedConfigs []string, alertAction string, a ActiveAlert, condition AlertCondition)
}

// NewEngine creates an alert Engine ticking every interval (default 30s if
// interval <= 0).
func NewEngine(store *Store, metrics *metricstore.Store, notifier Notifier, b *bus.Bus, logger *slog.Logger, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{store: store, metrics: metrics, notifier: notifier, bus: b, logger: logger, interval: interval}
}

// Run starts the tick loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("alert engine started", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("alert engine stopped")
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("alert engine tick", "error", err)
			}
		}
	}
}

// Tick evaluates every enabled condition once; Run calls it on each tick.
func (e *Engine) Tick(ctx context.Context) error {
	conditions, err := e.store.ListEnabledConditions(ctx)
	if err != nil {
		return fmt.Errorf("listing conditions: %w", err)
	}

	for _, c := range conditions {
		if err := e.evaluate(ctx, c); err != nil {
			e.logger.Error("evaluating condition", "condition_id", c.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context, c AlertCondition) error {
	window := time.Duration(c.DurationMinutes) * time.Minute

	value, ok, err := e.deriveSLI(ctx, c, window)
	if err != nil {
		return fmt.Errorf("deriving SLI: %w", err)
	}
	if !ok {
		// No sample exists for this window: skip silently, per contract.
		return nil
	}

	breached := c.Operator.Compare(value, c.Threshold)

	existing, err := e.store.GetFiringAlert(ctx, c.ID)
	hasFiring := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("checking firing alert: %w", err)
		}
		hasFiring = false
	}

	switch {
	case breached && !hasFiring:
		return e.fire(ctx, c, value)
	case !breached && hasFiring:
		return e.resolve(ctx, c, existing)
	default:
		// Breached-and-firing or clear-and-clear: idempotent no-op, the
		// at-most-one-firing invariant already holds.
		return nil
	}
}

// deriveSLI computes the current value for a condition's metric_name,
// dispatching on the SLI pattern the name matches.
func (e *Engine) deriveSLI(ctx context.Context, c AlertCondition, window time.Duration) (float64, bool, error) {
	switch metricstore.ClassifySLI(c.MetricName) {
	case metricstore.SLIErrorRate:
		rate, ok, err := e.metrics.ErrorRate(ctx, c.ProjectID, c.Service, window)
		return rate * 100, ok, err
	case metricstore.SLILatency:
		return e.metrics.LatencyPercentile(ctx, c.ProjectID, c.Service, 0.5, window)
	case metricstore.SLIResource:
		resource := "cpu"
		if hasSuffix(c.MetricName, "memory") || hasPrefixLocal(c.MetricName, "memory") {
			resource = "memory"
		}
		return e.metrics.ResourceAvg(ctx, c.ProjectID, c.Service, resource, window)
	default:
		return e.metrics.AvgMetric(ctx, c.ProjectID, c.Service, c.MetricName, window)
	}
}

func hasPrefixLocal(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (e *Engine) fire(ctx context.Context, c AlertCondition, value float64) error {
	title := fmt.Sprintf("%s %s %s %v on %s", c.MetricName, c.Operator, formatThreshold(c.Threshold), value, c.Service)
	description := fmt.Sprintf("metric %s breached threshold %s %v (current value %v)", c.MetricName, c.Operator, c.Threshold, value)

	a, err := e.store.CreateFiringAlert(ctx, c.TenantID, c.ProjectID, c.ID, title, description, c.Severity, value)
	if err != nil {
		// A racing duplicate tick collides on the partial unique index;
		// treat that as the alert already firing, not a failure.
		existing, getErr := e.store.GetFiringAlert(ctx, c.ID)
		if getErr == nil {
			e.logger.Debug("duplicate tick observed concurrent fire", "condition_id", c.ID)
			_ = existing
			return nil
		}
		return err
	}

	e.bus.Publish(ctx, bus.ChannelAlerts, bus.EventAlertFiring, c.TenantID, a)
	e.notifyIfNotMuted(ctx, c, a, "firing")
	return nil
}

func (e *Engine) resolve(ctx context.Context, c AlertCondition, a ActiveAlert) error {
	resolved, err := e.store.ResolveAlert(ctx, a.ID)
	if err != nil {
		return err
	}

	e.bus.Publish(ctx, bus.ChannelAlerts, bus.EventAlertResolved, c.TenantID, resolved)
	e.notifyIfNotMuted(ctx, c, resolved, "resolved")
	return nil
}

func (e *Engine) notifyIfNotMuted(ctx context.Context, c AlertCondition, a ActiveAlert, action string) {
	rules, err := e.store.ListActiveMutingRules(ctx, c.ProjectID, time.Now())
	if err != nil {
		e.logger.Error("listing muting rules", "error", err)
	} else {
		labels := c.Labels()
		for _, rule := range rules {
			if rule.Active(time.Now()) && rule.Matches(labels) {
				e.logger.Debug("alert notification muted", "condition_id", c.ID, "rule_id", rule.ID)
				return
			}
		}
	}

	channels, configs, err := e.store.ListChannelsForCondition(ctx, c.ID)
	if err != nil {
		e.logger.Error("listing notification channels", "error", err)
		return
	}
	if len(channels) == 0 {
		return
	}

	e.notifier.NotifyAlert(ctx, channels, configs, action, a, c)
}

func formatThreshold(v float64) string {
	return fmt.Sprintf("%v", v)
}
