package tracing

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateForest(t *testing.T) {
	root := uuid.New()
	child := uuid.New()
	orphan := uuid.New()
	elsewhere := uuid.New()

	t.Run("valid forest", func(t *testing.T) {
		spans := []IngestSpanRequest{
			{ID: root, Name: "root"},
			{ID: child, ParentSpanID: &root, Name: "child"},
		}
		if err := ValidateForest(spans); err != nil {
			t.Errorf("ValidateForest() error = %v, want nil", err)
		}
	})

	t.Run("parent outside batch", func(t *testing.T) {
		spans := []IngestSpanRequest{
			{ID: orphan, ParentSpanID: &elsewhere, Name: "orphan"},
		}
		if err := ValidateForest(spans); err != ErrSpanOutsideTrace {
			t.Errorf("ValidateForest() error = %v, want ErrSpanOutsideTrace", err)
		}
	})
}

func TestDeriveRoot(t *testing.T) {
	root := uuid.New()
	child := uuid.New()
	now := time.Now()

	spans := []IngestSpanRequest{
		{ID: child, ParentSpanID: &root, Name: "child", StartedAt: now.Add(time.Millisecond)},
		{ID: root, Name: "root", StartedAt: now},
	}
	if got := deriveRoot(spans); got != "root" {
		t.Errorf("deriveRoot() = %q, want %q", got, "root")
	}
}

func TestAggregateDuration(t *testing.T) {
	now := time.Now()
	spans := []IngestSpanRequest{
		{StartedAt: now, DurationMS: 10},
		{StartedAt: now.Add(5 * time.Millisecond), DurationMS: 50},
	}
	got := aggregateDuration(spans)
	if got != 55 {
		t.Errorf("aggregateDuration() = %v, want 55", got)
	}
}
