package metricstore

import (
	"testing"
	"time"
)

func TestClassifySLI(t *testing.T) {
	tests := []struct {
		metricName string
		want       SLIKind
	}{
		{"error_rate", SLIErrorRate},
		{"error_rate_5xx", SLIErrorRate},
		{"response_time_p95", SLILatency},
		{"latency_ms", SLILatency},
		{"cpu_usage", SLIResource},
		{"memory_usage", SLIResource},
		{"queue_depth", SLIRawMetric},
	}

	for _, tt := range tests {
		if got := ClassifySLI(tt.metricName); got != tt.want {
			t.Errorf("ClassifySLI(%q) = %v, want %v", tt.metricName, got, tt.want)
		}
	}
}

func TestIntervalSeconds(t *testing.T) {
	if got := intervalSeconds(5 * time.Minute); got != "300 seconds" {
		t.Errorf("intervalSeconds(5m) = %q, want %q", got, "300 seconds")
	}
	if got := intervalSeconds(30 * time.Second); got != "30 seconds" {
		t.Errorf("intervalSeconds(30s) = %q, want %q", got, "30 seconds")
	}
}
