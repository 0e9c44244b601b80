package ai

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/pkg/incident"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name               string
		inputTokens        int
		outputTokens       int
		priceIn, priceOut  float64
		want               float64
	}{
		{"zero usage", 0, 0, 1.0, 5.0, 0},
		{"typical request", 1200, 400, 1.0, 5.0, 0.0012 + 0.002},
		{"fractional rounds to six places", 7, 3, 1.0, 5.0, 0.000022},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.inputTokens, tt.outputTokens, tt.priceIn, tt.priceOut)
			if got != roundTo(tt.want, 6) {
				t.Errorf("Cost(%d, %d, %v, %v) = %v, want %v", tt.inputTokens, tt.outputTokens, tt.priceIn, tt.priceOut, got, roundTo(tt.want, 6))
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	if clampConfidence(-0.5) != 0 {
		t.Error("clampConfidence(-0.5) should floor to 0")
	}
	if clampConfidence(1.5) != 1 {
		t.Error("clampConfidence(1.5) should cap to 1")
	}
	if clampConfidence(0.42) != 0.42 {
		t.Error("clampConfidence(0.42) should pass through unchanged")
	}
}

func TestTruncateEvidence(t *testing.T) {
	items := make([]string, 20)
	for i := range items {
		items[i] = "evidence item"
	}
	out := truncateEvidence(items)
	if len(out) != maxEvidenceItems {
		t.Errorf("truncateEvidence() len = %d, want %d", len(out), maxEvidenceItems)
	}

	long := truncateEvidence([]string{string(make([]byte, maxEvidenceLen+50))})
	if len(long[0]) != maxEvidenceLen {
		t.Errorf("truncateEvidence() item len = %d, want %d", len(long[0]), maxEvidenceLen)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"```json\n[1,2,3]\n```": "[1,2,3]",
		"```\n[1,2,3]\n```":     "[1,2,3]",
		"[1,2,3]":               "[1,2,3]",
	}
	for in, want := range tests {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseHypotheses(t *testing.T) {
	raw := "```json\n[{\"claim\":\"db saturation\",\"description\":\"pool exhausted\",\"confidence_score\":0.8,\"evidence\":[\"conn count spiked\"]}]\n```"
	got, err := parseHypotheses(raw)
	if err != nil {
		t.Fatalf("parseHypotheses() error = %v", err)
	}
	if len(got) != 1 || got[0].Claim != "db saturation" || got[0].ConfidenceScore != 0.8 {
		t.Errorf("parseHypotheses() = %+v, unexpected", got)
	}
}

func TestParseHypothesesRejectsNonArray(t *testing.T) {
	if _, err := parseHypotheses(`{"claim":"not an array"}`); err == nil {
		t.Error("parseHypotheses() on an object should error")
	}
}

// fakeLocker emulates cache.Locker's Acquire/Release contract in memory, so
// lockKey's per-incident collision behaviour can be checked without Redis.
// Service takes a concrete *cache.Locker and is not driven through it.
type fakeLocker struct {
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(_ context.Context, name string) (bool, error) {
	if f.held[name] {
		return false, nil
	}
	f.held[name] = true
	return true, nil
}

func (f *fakeLocker) Release(_ context.Context, name string) error {
	delete(f.held, name)
	return nil
}

func TestSingleFlightCollision(t *testing.T) {
	locker := newFakeLocker()
	id := uuid.New()
	key := lockKey(id)

	ok, err := locker.Acquire(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v, want true, nil", ok, err)
	}

	ok, err = locker.Acquire(context.Background(), key)
	if err != nil || ok {
		t.Fatalf("second Acquire() = %v, %v, want false, nil (already held)", ok, err)
	}

	if err := locker.Release(context.Background(), key); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	ok, err = locker.Acquire(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("Acquire() after Release() = %v, %v, want true, nil", ok, err)
	}
}

func TestMockGeneratorDeterministic(t *testing.T) {
	gen := NewMockGenerator()
	inc := incident.Incident{Service: "checkout-api", Severity: incident.SeverityHigh, Title: "elevated errors"}

	first, err := gen.Generate(context.Background(), inc, 800)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := gen.Generate(context.Background(), inc, 800)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(first.Hypotheses) == 0 || len(first.Hypotheses) != len(second.Hypotheses) {
		t.Fatalf("mock generator output should be deterministic in shape")
	}
	if first.Hypotheses[0].Claim != second.Hypotheses[0].Claim {
		t.Error("mock generator claims should be deterministic across calls")
	}
}

func TestToIncidentHypothesesRanksSequentially(t *testing.T) {
	incidentID := uuid.New()
	generated := []GeneratedHypothesis{
		{Claim: "a", ConfidenceScore: 0.9},
		{Claim: "b", ConfidenceScore: 0.5},
	}

	out := toIncidentHypotheses(incidentID, generated)
	if len(out) != 2 {
		t.Fatalf("toIncidentHypotheses() len = %d, want 2", len(out))
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Errorf("toIncidentHypotheses() ranks = %d, %d, want 1, 2", out[0].Rank, out[1].Rank)
	}
	for _, h := range out {
		if h.IncidentID != incidentID {
			t.Error("toIncidentHypotheses() did not stamp incident ID")
		}
	}
}
