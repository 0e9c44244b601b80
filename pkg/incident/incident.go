// Package incident implements the Incident Orchestrator: the incident
// lifecycle state machine, its child Hypotheses and AnalysisSteps, and the
// Activity audit trail recording every state and severity transition.
package incident

import (
	"time"

	"github.com/google/uuid"
)

// State is the incident lifecycle state.
type State string

const (
	StateDetected      State = "detected"
	StateInvestigating State = "investigating"
	StateAcknowledged  State = "acknowledged"
	StateMitigated     State = "mitigated"
	StateResolved      State = "resolved"
	StateClosed        State = "closed"
)

// transitions maps each state to the set of states it may move to directly.
var transitions = map[State][]State{
	StateDetected:      {StateInvestigating, StateAcknowledged},
	StateInvestigating: {StateAcknowledged, StateMitigated, StateResolved},
	StateAcknowledged:  {StateMitigated, StateResolved},
	StateMitigated:     {StateResolved},
	StateResolved:      {StateClosed},
	StateClosed:        {},
}

// CanTransition reports whether the lifecycle graph permits from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Severity is the incident severity level. Unlike State, severity updates
// are unconstrained by a transition graph.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Incident is the root entity of the orchestrator.
type Incident struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Service        string     `json:"service"`
	Severity       Severity   `json:"severity"`
	State          State      `json:"state"`
	MergedIntoID   *uuid.UUID `json:"merged_into_id,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// stored field limits, enforced when persisting AI-generated content.
const (
	maxHypothesisClaimLen       = 280
	maxHypothesisDescriptionLen = 2000
	maxEvidenceItems            = 10
	maxEvidenceItemLen          = 500
)

// Hypothesis is an AI-generated candidate explanation for an incident.
type Hypothesis struct {
	ID              uuid.UUID `json:"id"`
	IncidentID      uuid.UUID `json:"incident_id"`
	Claim           string    `json:"claim"`
	Description     string    `json:"description"`
	ConfidenceScore float64   `json:"confidence_score"`
	Rank            int       `json:"rank"`
	EvidenceList    []string  `json:"evidence_list"`
	CreatedAt       time.Time `json:"created_at"`
}

// clampConfidence restricts a confidence score to [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateEvidence(items []string) []string {
	if len(items) > maxEvidenceItems {
		items = items[:maxEvidenceItems]
	}
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = truncate(e, maxEvidenceItemLen)
	}
	return out
}

// AnalysisStepType enumerates the fixed five-step analysis workflow seeded on
// incident creation.
type AnalysisStepType string

const (
	StepAlertReceived      AnalysisStepType = "alert_received"
	StepSourceIdentified   AnalysisStepType = "source_identified"
	StepPlatformDetails    AnalysisStepType = "platform_details"
	StepLogsFetched        AnalysisStepType = "logs_fetched"
	StepHypothesisGenerated AnalysisStepType = "hypothesis_generated"
)

// AnalysisStepStatus is the lifecycle status of a single analysis step.
type AnalysisStepStatus string

const (
	StepStatusPending    AnalysisStepStatus = "pending"
	StepStatusInProgress AnalysisStepStatus = "in_progress"
	StepStatusCompleted  AnalysisStepStatus = "completed"
	StepStatusFailed     AnalysisStepStatus = "failed"
	StepStatusSkipped    AnalysisStepStatus = "skipped"
)

// AnalysisStep is one step of the fixed analysis workflow run against an
// incident.
type AnalysisStep struct {
	ID           uuid.UUID          `json:"id"`
	IncidentID   uuid.UUID          `json:"incident_id"`
	StepType     AnalysisStepType   `json:"step_type"`
	StepNumber   int                `json:"step_number"`
	Status       AnalysisStepStatus `json:"status"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Input        string             `json:"input,omitempty"`
	Output       string             `json:"output,omitempty"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	Cost         float64            `json:"cost"`
}

// seedSteps returns the five-step workflow seeded on creation: the first
// three steps are already completed by the time an incident is persisted
// (the alert was received, its source and platform identified), log
// fetching is in progress, and hypothesis generation is pending.
func seedSteps(incidentID uuid.UUID, now time.Time) []AnalysisStep {
	completed := []AnalysisStepType{StepAlertReceived, StepSourceIdentified, StepPlatformDetails}
	steps := make([]AnalysisStep, 0, 5)
	for i, t := range completed {
		steps = append(steps, AnalysisStep{
			ID:          uuid.New(),
			IncidentID:  incidentID,
			StepType:    t,
			StepNumber:  i + 1,
			Status:      StepStatusCompleted,
			StartedAt:   &now,
			CompletedAt: &now,
		})
	}
	steps = append(steps, AnalysisStep{
		ID:         uuid.New(),
		IncidentID: incidentID,
		StepType:   StepLogsFetched,
		StepNumber: 4,
		Status:     StepStatusInProgress,
		StartedAt:  &now,
	})
	steps = append(steps, AnalysisStep{
		ID:         uuid.New(),
		IncidentID: incidentID,
		StepType:   StepHypothesisGenerated,
		StepNumber: 5,
		Status:     StepStatusPending,
	})
	return steps
}

// Activity records a single field transition on an incident, with the actor
// who made it and an optional free-text comment.
type Activity struct {
	ID         uuid.UUID `json:"id"`
	IncidentID uuid.UUID `json:"incident_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateRequest is the payload for POST /incidents.
type CreateRequest struct {
	Title       string   `json:"title" validate:"required,max=280"`
	Description string   `json:"description" validate:"max=10000"`
	Service     string   `json:"service" validate:"required,max=200"`
	Severity    Severity `json:"severity" validate:"required,oneof=critical high medium low"`
}

// UpdateStateRequest transitions an incident's lifecycle state.
type UpdateStateRequest struct {
	State   State  `json:"state" validate:"required,oneof=detected investigating acknowledged mitigated resolved closed"`
	Comment string `json:"comment" validate:"max=2000"`
}

// UpdateSeverityRequest updates an incident's severity.
type UpdateSeverityRequest struct {
	Severity Severity `json:"severity" validate:"required,oneof=critical high medium low"`
	Comment  string   `json:"comment" validate:"max=2000"`
}

// MergeRequest merges a source incident into the target named in the path.
type MergeRequest struct {
	SourceID string `json:"source_id" validate:"required,uuid4"`
}

// ListFilters narrows an incident listing.
type ListFilters struct {
	State    State
	Severity Severity
	Service  string
}

// HypothesesResponse wraps generated hypotheses with a flag saying whether
// they were served from cache.
type HypothesesResponse struct {
	Hypotheses []Hypothesis `json:"hypotheses"`
	Cached     bool         `json:"cached"`
}
