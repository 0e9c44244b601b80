package alert

import (
	"testing"
	"time"
)

func TestOperatorCompare(t *testing.T) {
	tests := []struct {
		op        Operator
		value, th float64
		want      bool
	}{
		{OpGT, 5, 3, true},
		{OpGT, 3, 5, false},
		{OpLT, 3, 5, true},
		{OpGE, 5, 5, true},
		{OpLE, 5, 5, true},
		{OpEQ, 5, 5, true},
		{OpNE, 5, 3, true},
		{OpNE, 5, 5, false},
	}

	for _, tt := range tests {
		if got := tt.op.Compare(tt.value, tt.th); got != tt.want {
			t.Errorf("%s.Compare(%v, %v) = %v, want %v", tt.op, tt.value, tt.th, got, tt.want)
		}
	}
}

func TestMutingRuleActive(t *testing.T) {
	now := time.Now()
	rule := MutingRule{StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	if !rule.Active(now) {
		t.Error("Active(now) = false, want true within window")
	}
	if rule.Active(now.Add(2 * time.Hour)) {
		t.Error("Active(outside window) = true, want false")
	}
	if rule.Active(rule.EndsAt) {
		t.Error("Active(EndsAt) = true, want false (end is exclusive)")
	}
}

func TestMutingRuleMatches(t *testing.T) {
	rule := MutingRule{Matchers: map[string]string{"service": "checkout-api"}}
	if !rule.Matches(map[string]string{"service": "checkout-api", "severity": "high"}) {
		t.Error("Matches() = false, want true (subset matcher)")
	}
	if rule.Matches(map[string]string{"service": "payments-api"}) {
		t.Error("Matches() = true, want false (mismatched value)")
	}
}

func TestConditionLabels(t *testing.T) {
	c := AlertCondition{Service: "checkout-api", MetricName: "error_rate", Severity: SeverityHigh}
	labels := c.Labels()
	if labels["service"] != "checkout-api" || labels["metric_name"] != "error_rate" || labels["severity"] != "high" {
		t.Errorf("Labels() = %v, unexpected", labels)
	}
}
