package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/cryptoseal"
)

// Service wraps Store with config sealing for channel creation.
type Service struct {
	store  *Store
	sealer *cryptoseal.Sealer
	logger *slog.Logger
}

// NewService creates an alert Service.
func NewService(store *Store, sealer *cryptoseal.Sealer, logger *slog.Logger) *Service {
	return &Service{store: store, sealer: sealer, logger: logger}
}

// CreatePolicy creates a new alert policy.
func (s *Service) CreatePolicy(ctx context.Context, tenantID, projectID uuid.UUID, req CreatePolicyRequest) (AlertPolicy, error) {
	return s.store.CreatePolicy(ctx, tenantID, projectID, req.Name, req.ChannelIDs)
}

// CreateCondition creates a new alert condition, picked up by the next tick.
func (s *Service) CreateCondition(ctx context.Context, tenantID, projectID uuid.UUID, req CreateConditionRequest) (AlertCondition, error) {
	return s.store.CreateCondition(ctx, tenantID, projectID, req)
}

// CreateChannel seals the channel's config before persisting it; the raw
// config is never stored or logged.
func (s *Service) CreateChannel(ctx context.Context, tenantID, projectID uuid.UUID, req CreateChannelRequest) (NotificationChannel, error) {
	raw, err := json.Marshal(req.Config)
	if err != nil {
		return NotificationChannel{}, fmt.Errorf("marshaling channel config: %w", err)
	}

	sealed, err := s.sealer.Seal(raw)
	if err != nil {
		return NotificationChannel{}, fmt.Errorf("sealing channel config: %w", err)
	}

	return s.store.CreateChannel(ctx, tenantID, projectID, req.Name, req.Kind, sealed)
}

// CreateMutingRule creates a new muting rule.
func (s *Service) CreateMutingRule(ctx context.Context, tenantID, projectID uuid.UUID, req CreateMutingRuleRequest) (MutingRule, error) {
	return s.store.CreateMutingRule(ctx, tenantID, projectID, req)
}
