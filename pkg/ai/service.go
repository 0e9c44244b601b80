package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/bus"
	"github.com/pulsegrid/controlplane/internal/cache"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
	"github.com/pulsegrid/controlplane/pkg/incident"
)

// ErrAlreadyGenerating is returned when a hypothesis generation request
// collides with one already in flight for the same incident.
var ErrAlreadyGenerating = errors.New("hypothesis generation already in progress for this incident")

// Service orchestrates hypothesis generation: single-flight locking, model
// invocation, parsing/clamping, persistence, cost accounting, and step
// transitions.
type Service struct {
	incidents     *incident.Store
	locker        *cache.Locker
	generator     Generator
	priceIn       float64
	priceOut      float64
	bus           *bus.Bus
	logger        *slog.Logger
}

// NewService creates an ai Service. priceInPerMillion/priceOutPerMillion are
// config.AIPriceInPerMillion/AIPriceOutPerMillion.
func NewService(incidents *incident.Store, locker *cache.Locker, generator Generator, priceInPerMillion, priceOutPerMillion float64, b *bus.Bus, logger *slog.Logger) *Service {
	return &Service{
		incidents: incidents,
		locker:    locker,
		generator: generator,
		priceIn:   priceInPerMillion,
		priceOut:  priceOutPerMillion,
		bus:       b,
		logger:    logger,
	}
}

// GenerateHypotheses runs the single-incident hypothesis pipeline. It returns
// ErrAlreadyGenerating if another request is already generating for this
// incident.
func (s *Service) GenerateHypotheses(ctx context.Context, scope tenantctx.Scope, incidentID uuid.UUID) ([]incident.Hypothesis, error) {
	key := lockKey(incidentID)
	acquired, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyGenerating
	}
	defer func() {
		if err := s.locker.Release(ctx, key); err != nil {
			s.logger.Error("releasing single-flight lock", "incident_id", incidentID, "error", err)
		}
	}()

	return s.generateFor(ctx, scope, incidentID, maxSingleTokens)
}

// GenerateBatch runs hypothesis generation for up to maxBatchSize incidents.
// Each incident is independently single-flight-locked; a failure or
// in-flight collision on one incident does not stop the others.
func (s *Service) GenerateBatch(ctx context.Context, scope tenantctx.Scope, incidentIDs []uuid.UUID) (map[uuid.UUID][]incident.Hypothesis, map[uuid.UUID]error) {
	if len(incidentIDs) > maxBatchSize {
		incidentIDs = incidentIDs[:maxBatchSize]
	}

	results := make(map[uuid.UUID][]incident.Hypothesis, len(incidentIDs))
	errs := make(map[uuid.UUID]error, len(incidentIDs))

	for _, id := range incidentIDs {
		hyps, err := s.GenerateHypotheses(ctx, scope, id)
		if err != nil {
			errs[id] = err
			continue
		}
		results[id] = hyps
	}
	return results, errs
}

func (s *Service) generateFor(ctx context.Context, scope tenantctx.Scope, incidentID uuid.UUID, maxTokens int) ([]incident.Hypothesis, error) {
	inc, err := s.incidents.Get(ctx, scope, incidentID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := s.generator.Generate(ctx, inc, maxTokens)
	duration := time.Since(start)
	if err != nil {
		_ = s.incidents.CompleteStep(ctx, incidentID, incident.StepHypothesisGenerated, incident.StepStatusFailed, err.Error(), 0, 0, 0)
		return nil, err
	}

	cost := Cost(completion.InputTokens, completion.OutputTokens, s.priceIn, s.priceOut)

	hypotheses := toIncidentHypotheses(incidentID, completion.Hypotheses)
	if err := s.incidents.ReplaceHypotheses(ctx, incidentID, hypotheses); err != nil {
		return nil, err
	}

	if err := s.incidents.CreateAIRequest(ctx, incident.AIRequest{
		ID:           uuid.New(),
		IncidentID:   incidentID,
		Kind:         "hypothesis_generation",
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Cost:         cost,
		DurationMs:   int(duration.Milliseconds()),
		Model:        "configured-model",
		Summary:      "ranked root-cause hypotheses",
	}); err != nil {
		s.logger.Error("recording AI request", "incident_id", incidentID, "error", err)
	}

	if err := s.incidents.CompleteStep(ctx, incidentID, incident.StepHypothesisGenerated, incident.StepStatusCompleted, "", completion.InputTokens, completion.OutputTokens, cost); err != nil {
		s.logger.Error("completing hypothesis_generated step", "incident_id", incidentID, "error", err)
	}

	s.bus.Publish(ctx, bus.ChannelHypotheses, bus.EventHypothesisGenerated, scope.TenantID, hypotheses)

	return hypotheses, nil
}

// toIncidentHypotheses clamps, truncates, and ranks the model's raw output
// into persistable incident.Hypothesis rows.
func toIncidentHypotheses(incidentID uuid.UUID, generated []GeneratedHypothesis) []incident.Hypothesis {
	out := make([]incident.Hypothesis, 0, len(generated))
	for i, g := range generated {
		out = append(out, incident.Hypothesis{
			ID:              uuid.New(),
			IncidentID:      incidentID,
			Claim:           truncate(g.Claim, maxClaimLen),
			Description:     truncate(g.Description, maxDescriptionLen),
			ConfidenceScore: clampConfidence(g.ConfidenceScore),
			Rank:            i + 1,
			EvidenceList:    truncateEvidence(g.Evidence),
			CreatedAt:       time.Now(),
		})
	}
	return out
}
