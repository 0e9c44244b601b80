package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store persists alert policies, conditions, channels, muting rules, and
// active alerts.
type Store struct {
	db dbx.DBTX
}

// NewStore creates an alert Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// CreatePolicy inserts a new alert policy and links its channels.
func (s *Store) CreatePolicy(ctx context.Context, tenantID, projectID uuid.UUID, name string, channelIDs []uuid.UUID) (AlertPolicy, error) {
	var p AlertPolicy
	query := `INSERT INTO alert_policies (tenant_id, project_id, name) VALUES ($1, $2, $3) RETURNING id, tenant_id, project_id, name, created_at`
	if err := s.db.QueryRow(ctx, query, tenantID, projectID, name).Scan(&p.ID, &p.TenantID, &p.ProjectID, &p.Name, &p.CreatedAt); err != nil {
		return AlertPolicy{}, fmt.Errorf("creating policy: %w", err)
	}

	for _, chID := range channelIDs {
		linkQuery := `INSERT INTO alert_policy_channels (policy_id, channel_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := s.db.Exec(ctx, linkQuery, p.ID, chID); err != nil {
			return AlertPolicy{}, fmt.Errorf("linking channel %s: %w", chID, err)
		}
	}
	return p, nil
}

// CreateCondition inserts a new alert condition.
func (s *Store) CreateCondition(ctx context.Context, tenantID, projectID uuid.UUID, req CreateConditionRequest) (AlertCondition, error) {
	query := `INSERT INTO alert_conditions (tenant_id, project_id, policy_id, metric_name, service, operator, threshold, duration_minutes, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, tenant_id, project_id, policy_id, metric_name, service, operator, threshold, duration_minutes, severity, is_enabled, created_at, updated_at`
	var c AlertCondition
	err := s.db.QueryRow(ctx, query, tenantID, projectID, req.PolicyID, req.MetricName, req.Service, req.Operator, req.Threshold, req.DurationMinutes, req.Severity).
		Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.PolicyID, &c.MetricName, &c.Service, &c.Operator, &c.Threshold, &c.DurationMinutes, &c.Severity, &c.IsEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return AlertCondition{}, fmt.Errorf("creating condition: %w", err)
	}
	return c, nil
}

// ListEnabledConditions returns every enabled condition across every
// tenant/project, the tick loop's evaluation set.
func (s *Store) ListEnabledConditions(ctx context.Context) ([]AlertCondition, error) {
	query := `SELECT id, tenant_id, project_id, policy_id, metric_name, service, operator, threshold, duration_minutes, severity, is_enabled, created_at, updated_at
		FROM alert_conditions WHERE is_enabled`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing enabled conditions: %w", err)
	}
	defer rows.Close()

	var items []AlertCondition
	for rows.Next() {
		var c AlertCondition
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.PolicyID, &c.MetricName, &c.Service, &c.Operator, &c.Threshold, &c.DurationMinutes, &c.Severity, &c.IsEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning condition: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// GetFiringAlert returns the current firing ActiveAlert for a condition, if
// any.
func (s *Store) GetFiringAlert(ctx context.Context, conditionID uuid.UUID) (ActiveAlert, error) {
	query := `SELECT id, tenant_id, project_id, condition_id, title, description, severity, status, metric_value, fired_at, resolved_at
		FROM active_alerts WHERE condition_id = $1 AND status = 'firing'`
	var a ActiveAlert
	err := s.db.QueryRow(ctx, query, conditionID).Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.ConditionID, &a.Title, &a.Description, &a.Severity, &a.Status, &a.MetricValue, &a.FiredAt, &a.ResolvedAt)
	return a, err
}

// CreateFiringAlert inserts a new firing ActiveAlert. The partial unique
// index on (condition_id) WHERE status='firing' makes this a no-op-safe
// operation under a racing duplicate tick: the second insert fails with a
// unique violation, which the caller treats as "already firing".
func (s *Store) CreateFiringAlert(ctx context.Context, tenantID, projectID, conditionID uuid.UUID, title, description string, severity Severity, metricValue float64) (ActiveAlert, error) {
	query := `INSERT INTO active_alerts (tenant_id, project_id, condition_id, title, description, severity, status, metric_value)
		VALUES ($1, $2, $3, $4, $5, $6, 'firing', $7)
		RETURNING id, tenant_id, project_id, condition_id, title, description, severity, status, metric_value, fired_at, resolved_at`
	var a ActiveAlert
	err := s.db.QueryRow(ctx, query, tenantID, projectID, conditionID, title, description, severity, metricValue).
		Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.ConditionID, &a.Title, &a.Description, &a.Severity, &a.Status, &a.MetricValue, &a.FiredAt, &a.ResolvedAt)
	if err != nil {
		return ActiveAlert{}, fmt.Errorf("creating firing alert: %w", err)
	}
	return a, nil
}

// ResolveAlert transitions a firing alert to resolved and stamps resolved_at.
func (s *Store) ResolveAlert(ctx context.Context, id uuid.UUID) (ActiveAlert, error) {
	query := `UPDATE active_alerts SET status = 'resolved', resolved_at = now() WHERE id = $1
		RETURNING id, tenant_id, project_id, condition_id, title, description, severity, status, metric_value, fired_at, resolved_at`
	var a ActiveAlert
	err := s.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.ConditionID, &a.Title, &a.Description, &a.Severity, &a.Status, &a.MetricValue, &a.FiredAt, &a.ResolvedAt)
	if err != nil {
		return ActiveAlert{}, fmt.Errorf("resolving alert: %w", err)
	}
	return a, nil
}

// ListActiveMutingRules returns every muting rule for a project whose window
// contains now, the candidate set checked against an alert's labels.
func (s *Store) ListActiveMutingRules(ctx context.Context, projectID uuid.UUID, now time.Time) ([]MutingRule, error) {
	query := `SELECT id, tenant_id, project_id, matchers, starts_at, ends_at, created_at
		FROM muting_rules WHERE project_id = $1 AND starts_at <= $2 AND ends_at > $2`
	rows, err := s.db.Query(ctx, query, projectID, now)
	if err != nil {
		return nil, fmt.Errorf("listing muting rules: %w", err)
	}
	defer rows.Close()

	var items []MutingRule
	for rows.Next() {
		var m MutingRule
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProjectID, &m.Matchers, &m.StartsAt, &m.EndsAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning muting rule: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// CreateMutingRule inserts a new muting rule.
func (s *Store) CreateMutingRule(ctx context.Context, tenantID, projectID uuid.UUID, req CreateMutingRuleRequest) (MutingRule, error) {
	query := `INSERT INTO muting_rules (tenant_id, project_id, matchers, starts_at, ends_at) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, project_id, matchers, starts_at, ends_at, created_at`
	var m MutingRule
	err := s.db.QueryRow(ctx, query, tenantID, projectID, req.Matchers, req.StartsAt, req.EndsAt).
		Scan(&m.ID, &m.TenantID, &m.ProjectID, &m.Matchers, &m.StartsAt, &m.EndsAt, &m.CreatedAt)
	if err != nil {
		return MutingRule{}, fmt.Errorf("creating muting rule: %w", err)
	}
	return m, nil
}

// CreateChannel inserts a new notification channel with its config already
// sealed by the caller.
func (s *Store) CreateChannel(ctx context.Context, tenantID, projectID uuid.UUID, name string, kind ChannelKind, sealedConfig string) (NotificationChannel, error) {
	query := `INSERT INTO notification_channels (tenant_id, project_id, name, kind, sealed_config) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, project_id, name, kind, is_enabled, created_at`
	var c NotificationChannel
	err := s.db.QueryRow(ctx, query, tenantID, projectID, name, kind, sealedConfig).
		Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.Name, &c.Kind, &c.IsEnabled, &c.CreatedAt)
	if err != nil {
		return NotificationChannel{}, fmt.Errorf("creating channel: %w", err)
	}
	return c, nil
}

// ListChannelsForCondition returns the enabled channels attached to a
// condition's policy, along with their sealed config for the notifier.
func (s *Store) ListChannelsForCondition(ctx context.Context, conditionID uuid.UUID) ([]NotificationChannel, []string, error) {
	query := `SELECT nc.id, nc.tenant_id, nc.project_id, nc.name, nc.kind, nc.sealed_config, nc.is_enabled, nc.created_at
		FROM notification_channels nc
		JOIN alert_policy_channels apc ON apc.channel_id = nc.id
		JOIN alert_conditions ac ON ac.policy_id = apc.policy_id
		WHERE ac.id = $1 AND nc.is_enabled`
	rows, err := s.db.Query(ctx, query, conditionID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var channels []NotificationChannel
	var configs []string
	for rows.Next() {
		var c NotificationChannel
		var sealedConfig string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.Name, &c.Kind, &sealedConfig, &c.IsEnabled, &c.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, c)
		configs = append(configs, sealedConfig)
	}
	return channels, configs, rows.Err()
}
