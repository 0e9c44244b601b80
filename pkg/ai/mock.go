package ai

import (
	"context"
	"fmt"

	"github.com/pulsegrid/controlplane/pkg/incident"
)

// mockGenerator deterministically fabricates a fixed hypothesis set, used
// when no AI_MODEL_API_KEY is configured so the rest of the pipeline
// (persistence, cost accounting, step transitions) still runs end to end in
// local/dev environments.
type mockGenerator struct{}

// NewMockGenerator builds a Generator that never calls out to a model.
func NewMockGenerator() Generator {
	return mockGenerator{}
}

func (mockGenerator) Generate(_ context.Context, inc incident.Incident, _ int) (Completion, error) {
	hypotheses := []GeneratedHypothesis{
		{
			Claim:           fmt.Sprintf("Recent deployment to %s introduced a regression", inc.Service),
			Description:     "A deployment shortly before detection time correlates with the onset of this incident.",
			ConfidenceScore: 0.55,
			Evidence:        []string{"no live telemetry available (mock mode)"},
		},
		{
			Claim:           fmt.Sprintf("Upstream dependency of %s is degraded", inc.Service),
			Description:     "Elevated error rate or latency in a dependency could be propagating to this service.",
			ConfidenceScore: 0.3,
			Evidence:        []string{"no live telemetry available (mock mode)"},
		},
		{
			Claim:           "Resource exhaustion (CPU, memory, or connection pool)",
			Description:     "Saturated infrastructure resources are a common cause of the symptoms described.",
			ConfidenceScore: 0.15,
			Evidence:        []string{"no live telemetry available (mock mode)"},
		},
	}
	return Completion{Hypotheses: hypotheses, InputTokens: 0, OutputTokens: 0}, nil
}
