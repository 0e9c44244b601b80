package incident

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/bus"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Service encapsulates incident business logic: the lifecycle state machine,
// Activity recording, and the fixed analysis workflow. AI enrichment lives in
// a sibling package and is not invoked from this one.
type Service struct {
	store  *Store
	bus    *bus.Bus
	logger *slog.Logger
}

// NewService creates an incident Service backed by the given Store.
func NewService(store *Store, eventBus *bus.Bus, logger *slog.Logger) *Service {
	return &Service{store: store, bus: eventBus, logger: logger}
}

// Create persists a new incident in the investigating state, seeds the
// five-step analysis workflow, and publishes incident.created. It does not
// trigger AI enrichment, and no caller of Create does; hypotheses are
// generated only through the ai package's own endpoints.
func (s *Service) Create(ctx context.Context, scope tenantctx.Scope, req CreateRequest) (Incident, error) {
	inc, err := s.store.Create(ctx, scope, req)
	if err != nil {
		return Incident{}, fmt.Errorf("creating incident: %w", err)
	}

	steps := seedSteps(inc.ID, inc.DetectedAt)
	if err := s.store.CreateSteps(ctx, steps); err != nil {
		s.logger.Warn("seeding analysis steps", "error", err, "incident_id", inc.ID)
	}

	s.bus.Publish(ctx, bus.ChannelIncidents, bus.EventIncidentCreated, scope.TenantID, inc)

	return inc, nil
}

// Get returns a single incident.
func (s *Service) Get(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (Incident, error) {
	inc, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Incident{}, fmt.Errorf("getting incident: %w", err)
	}
	return inc, nil
}

// List returns a paginated, filtered list of incidents.
func (s *Service) List(ctx context.Context, scope tenantctx.Scope, filters ListFilters, limit, offset int) ([]Incident, int, error) {
	items, err := s.store.ListFiltered(ctx, scope, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing incidents: %w", err)
	}
	count, err := s.store.CountFiltered(ctx, scope, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("counting incidents: %w", err)
	}
	if items == nil {
		items = []Incident{}
	}
	return items, count, nil
}

// Search performs a full-text search across incidents.
func (s *Service) Search(ctx context.Context, scope tenantctx.Scope, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	results, err := s.store.Search(ctx, scope, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching incidents: %w", err)
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// ErrInvalidTransition is returned when a requested state change is not
// reachable from the incident's current state.
type ErrInvalidTransition struct {
	From, To State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition incident from %s to %s", e.From, e.To)
}

// UpdateState applies a guarded lifecycle transition, records an Activity
// entry, and publishes incident.updated.
func (s *Service) UpdateState(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, actorID *uuid.UUID, req UpdateStateRequest) (Incident, error) {
	current, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Incident{}, fmt.Errorf("getting incident for state update: %w", err)
	}

	if current.State == req.State {
		return current, nil
	}
	if !CanTransition(current.State, req.State) {
		return Incident{}, ErrInvalidTransition{From: current.State, To: req.State}
	}

	updated, err := s.store.UpdateState(ctx, scope, id, req.State)
	if err != nil {
		return Incident{}, fmt.Errorf("updating incident state: %w", err)
	}

	if err := s.store.CreateActivity(ctx, id, actorID, "state", string(current.State), string(req.State), req.Comment); err != nil {
		s.logger.Warn("recording state activity", "error", err, "incident_id", id)
	}

	s.bus.Publish(ctx, bus.ChannelIncidents, bus.EventIncidentUpdated, scope.TenantID, updated)
	return updated, nil
}

// UpdateSeverity updates an incident's severity, unconstrained by a
// transition graph, recording an Activity entry and publishing
// incident.updated.
func (s *Service) UpdateSeverity(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, actorID *uuid.UUID, req UpdateSeverityRequest) (Incident, error) {
	current, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Incident{}, fmt.Errorf("getting incident for severity update: %w", err)
	}

	if current.Severity == req.Severity {
		return current, nil
	}

	updated, err := s.store.UpdateSeverity(ctx, scope, id, req.Severity)
	if err != nil {
		return Incident{}, fmt.Errorf("updating incident severity: %w", err)
	}

	if err := s.store.CreateActivity(ctx, id, actorID, "severity", string(current.Severity), string(req.Severity), req.Comment); err != nil {
		s.logger.Warn("recording severity activity", "error", err, "incident_id", id)
	}

	s.bus.Publish(ctx, bus.ChannelIncidents, bus.EventIncidentUpdated, scope.TenantID, updated)
	return updated, nil
}

// Delete removes an incident and, via ON DELETE CASCADE, its Hypotheses,
// AnalysisSteps, AIRequests, and Activities.
func (s *Service) Delete(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) error {
	if err := s.store.Delete(ctx, scope, id); err != nil {
		return fmt.Errorf("deleting incident: %w", err)
	}
	return nil
}

// ListActivities returns the Activity timeline for an incident, newest first.
func (s *Service) ListActivities(ctx context.Context, incidentID uuid.UUID) ([]Activity, error) {
	items, err := s.store.ListActivities(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing incident activities: %w", err)
	}
	if items == nil {
		items = []Activity{}
	}
	return items, nil
}

// ListSteps returns the analysis workflow steps for an incident.
func (s *Service) ListSteps(ctx context.Context, incidentID uuid.UUID) ([]AnalysisStep, error) {
	items, err := s.store.ListSteps(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing analysis steps: %w", err)
	}
	return items, nil
}

// Merge merges the source incident into the target: title, service, and
// state are kept from the target; severity takes the more severe of the two;
// the source is closed and marked merged. The caller must pass distinct,
// unmerged incident IDs.
func (s *Service) Merge(ctx context.Context, scope tenantctx.Scope, targetID, sourceID uuid.UUID, actorID *uuid.UUID) (Incident, error) {
	if targetID == sourceID {
		return Incident{}, fmt.Errorf("cannot merge an incident into itself")
	}

	target, err := s.store.Get(ctx, scope, targetID)
	if err != nil {
		return Incident{}, fmt.Errorf("getting target incident: %w", err)
	}
	if target.MergedIntoID != nil {
		return Incident{}, fmt.Errorf("target incident is already merged")
	}

	source, err := s.store.Get(ctx, scope, sourceID)
	if err != nil {
		return Incident{}, fmt.Errorf("getting source incident: %w", err)
	}
	if source.MergedIntoID != nil {
		return Incident{}, fmt.Errorf("source incident is already merged")
	}

	mergedSeverity := bestSeverity(target.Severity, source.Severity)
	if mergedSeverity != target.Severity {
		if _, err := s.store.UpdateSeverity(ctx, scope, targetID, mergedSeverity); err != nil {
			return Incident{}, fmt.Errorf("updating target severity during merge: %w", err)
		}
	}

	if err := s.store.SetMergedInto(ctx, scope, sourceID, targetID); err != nil {
		return Incident{}, fmt.Errorf("marking source as merged: %w", err)
	}

	if err := s.store.CreateActivity(ctx, targetID, actorID, "merge", "", sourceID.String(), "merged source incident into this one"); err != nil {
		s.logger.Warn("recording merge activity on target", "error", err, "incident_id", targetID)
	}
	if err := s.store.CreateActivity(ctx, sourceID, actorID, "state", string(source.State), string(StateClosed), "merged into "+targetID.String()); err != nil {
		s.logger.Warn("recording merge activity on source", "error", err, "incident_id", sourceID)
	}

	updated, err := s.store.Get(ctx, scope, targetID)
	if err != nil {
		return Incident{}, fmt.Errorf("reloading merged target incident: %w", err)
	}

	s.bus.Publish(ctx, bus.ChannelIncidents, bus.EventIncidentUpdated, scope.TenantID, updated)
	return updated, nil
}

// severityOrder ranks severities for bestSeverity comparisons.
var severityOrder = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// bestSeverity returns the more severe of two severity values.
func bestSeverity(a, b Severity) Severity {
	if severityOrder[b] > severityOrder[a] {
		return b
	}
	return a
}
