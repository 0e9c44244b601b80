// Package ai coordinates hypothesis generation for incidents: a
// single-flight-guarded call to an LLM, bounded-token prompts, tolerant JSON
// parsing, persistence through pkg/incident, and cost accounting.
package ai

import (
	"strings"

	"github.com/google/uuid"
)

// single-flight lock namespace, mirrors the cache.Locker key convention.
const lockKeyPrefix = "ai:generating:"

// lockKey returns the single-flight lock name for an incident's hypothesis
// generation, namespaced so a collision can only ever be against the same
// incident.
func lockKey(incidentID uuid.UUID) string {
	return lockKeyPrefix + incidentID.String()
}

// maxSingleTokens bounds each completion request so a single bad prompt
// cannot run away cost; see SPEC_FULL §4.4. A batch makes one call per
// incident, each bounded by maxSingleTokens; maxBatchTokensPerItem is not
// referenced.
const (
	maxSingleTokens       = 800
	maxBatchTokensPerItem = 1500
	maxBatchSize          = 10
)

// GeneratedHypothesis is the shape the model is asked to return, tolerant of
// the exact JSON encoding an LLM produces.
type GeneratedHypothesis struct {
	Claim           string   `json:"claim"`
	Description     string   `json:"description"`
	ConfidenceScore float64  `json:"confidence_score"`
	Evidence        []string `json:"evidence"`
}

// clampConfidence restricts a confidence score to [0,1], mirroring
// pkg/incident's own clamp (kept local since the source is unexported).
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

const (
	maxClaimLen       = 280
	maxDescriptionLen = 2000
	maxEvidenceItems  = 10
	maxEvidenceLen    = 500
)

func truncateEvidence(items []string) []string {
	if len(items) > maxEvidenceItems {
		items = items[:maxEvidenceItems]
	}
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = truncate(e, maxEvidenceLen)
	}
	return out
}

// stripCodeFence removes a leading/trailing ```json ... ``` or ``` ... ```
// fence an LLM commonly wraps its JSON answer in, so the raw text parses.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if first == "json" || first == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Cost computes the dollar cost of a completion from configured per-million
// token rates, rounded to 6 decimal places.
func Cost(inputTokens, outputTokens int, priceInPerMillion, priceOutPerMillion float64) float64 {
	raw := float64(inputTokens)*priceInPerMillion/1_000_000 + float64(outputTokens)*priceOutPerMillion/1_000_000
	return roundTo(raw, 6)
}

func roundTo(v float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}
