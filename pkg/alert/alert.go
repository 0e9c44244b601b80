// Package alert implements the Alert Evaluation Engine: periodic threshold
// evaluation against derived metrics, fire/resolve state tracking, muting,
// and notification fan-out.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a threshold comparison.
type Operator string

const (
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Compare evaluates value OP threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGE:
		return value >= threshold
	case OpLE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	default:
		return false
	}
}

// Severity mirrors the shared severity scale used by incidents and alerts.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// AlertStatus is the lifecycle state of an ActiveAlert.
type AlertStatus string

const (
	AlertFiring       AlertStatus = "firing"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertPolicy groups conditions under a named policy; channels attach to a
// policy many-to-many.
type AlertPolicy struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelKind enumerates the notification channel transports.
type ChannelKind string

const (
	ChannelSlack     ChannelKind = "slack"
	ChannelEmail     ChannelKind = "email"
	ChannelPagerDuty ChannelKind = "pagerduty"
	ChannelTeams     ChannelKind = "teams"
	ChannelWebhook   ChannelKind = "webhook"
)

// NotificationChannel is a configured destination for alert notifications.
// Config is stored sealed (cryptoseal) and only ever decrypted at send time.
type NotificationChannel struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	IsEnabled bool        `json:"is_enabled"`
	CreatedAt time.Time   `json:"created_at"`
}

// AlertCondition is a threshold rule evaluated every tick.
type AlertCondition struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	ProjectID       uuid.UUID `json:"project_id"`
	PolicyID        uuid.UUID `json:"policy_id"`
	MetricName      string    `json:"metric_name"`
	Service         string    `json:"service"`
	Operator        Operator  `json:"operator"`
	Threshold       float64   `json:"threshold"`
	DurationMinutes int       `json:"duration_minutes"`
	Severity        Severity  `json:"severity"`
	IsEnabled       bool      `json:"is_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MutingRule suppresses notifications (not persistence) for alerts whose
// labels are a superset of Matchers during [StartsAt, EndsAt).
type MutingRule struct {
	ID        uuid.UUID         `json:"id"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	ProjectID uuid.UUID         `json:"project_id"`
	Matchers  map[string]string `json:"matchers"`
	StartsAt  time.Time         `json:"starts_at"`
	EndsAt    time.Time         `json:"ends_at"`
	CreatedAt time.Time         `json:"created_at"`
}

// Active reports whether the rule's window contains t.
func (m MutingRule) Active(t time.Time) bool {
	return !t.Before(m.StartsAt) && t.Before(m.EndsAt)
}

// Matches reports whether m's matcher set is a subset of labels: every
// key/value pair in Matchers must be present and equal in labels.
func (m MutingRule) Matches(labels map[string]string) bool {
	for k, v := range m.Matchers {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// ActiveAlert is a firing, acknowledged, or resolved instance of a condition
// breach. Invariant: at most one firing ActiveAlert exists per condition,
// enforced by a partial unique index at the store level.
type ActiveAlert struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	ProjectID   uuid.UUID   `json:"project_id"`
	ConditionID uuid.UUID   `json:"condition_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Status      AlertStatus `json:"status"`
	MetricValue float64     `json:"metric_value"`
	FiredAt     time.Time   `json:"fired_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// Labels derives the matcher-comparable label set for a condition, used by
// MutingRule.Matches.
func (c AlertCondition) Labels() map[string]string {
	return map[string]string{
		"service":     c.Service,
		"metric_name": c.MetricName,
		"severity":    string(c.Severity),
	}
}

// CreatePolicyRequest is the payload for POST /alerts/policies.
type CreatePolicyRequest struct {
	Name       string      `json:"name" validate:"required,max=200"`
	ChannelIDs []uuid.UUID `json:"channel_ids"`
}

// CreateConditionRequest is the payload for POST /alerts/conditions.
type CreateConditionRequest struct {
	PolicyID        uuid.UUID `json:"policy_id" validate:"required"`
	MetricName      string    `json:"metric_name" validate:"required"`
	Service         string    `json:"service" validate:"required"`
	Operator        Operator  `json:"operator" validate:"required,oneof=> < >= <= == !="`
	Threshold       float64   `json:"threshold"`
	DurationMinutes int       `json:"duration_minutes" validate:"min=1"`
	Severity        Severity  `json:"severity" validate:"required,oneof=critical high medium low"`
}

// CreateChannelRequest is the payload for POST /alerts/channels. Config
// is an opaque per-kind map (e.g. {"webhook_url": "..."}) sealed before
// storage and never echoed back in responses.
type CreateChannelRequest struct {
	Name   string         `json:"name" validate:"required,max=200"`
	Kind   ChannelKind    `json:"kind" validate:"required,oneof=slack email pagerduty teams webhook"`
	Config map[string]any `json:"config" validate:"required"`
}

// CreateMutingRuleRequest is the payload for POST /alerts/muting-rules.
type CreateMutingRuleRequest struct {
	Matchers map[string]string `json:"matchers" validate:"required"`
	StartsAt time.Time         `json:"starts_at" validate:"required"`
	EndsAt   time.Time         `json:"ends_at" validate:"required,gtfield=StartsAt"`
}
