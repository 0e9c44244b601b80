package notifier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/cryptoseal"
	"github.com/pulsegrid/controlplane/pkg/alert"
)

// recordingProvider records every Send call and can be made to fail for a
// specific kind, to exercise per-channel failure isolation.
type recordingProvider struct {
	kind    alert.ChannelKind
	fail    bool
	sent    []Message
}

func (r *recordingProvider) Kind() alert.ChannelKind { return r.kind }

func (r *recordingProvider) Send(_ context.Context, _ map[string]any, msg Message) error {
	if r.fail {
		return errors.New("simulated provider failure")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestDispatcherIsolatesPerChannelFailures(t *testing.T) {
	sealer, err := cryptoseal.New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("cryptoseal.New() error = %v", err)
	}

	sealedEmpty, err := sealer.Seal([]byte(`{}`))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	failing := &recordingProvider{kind: alert.ChannelSlack, fail: true}
	working := &recordingProvider{kind: alert.ChannelWebhook, fail: false}

	registry := NewRegistry()
	registry.Register(failing)
	registry.Register(working)

	dispatcher := NewDispatcher(registry, sealer, testLogger())

	channels := []alert.NotificationChannel{
		{ID: uuid.New(), Kind: alert.ChannelSlack},
		{ID: uuid.New(), Kind: alert.ChannelWebhook},
	}
	configs := []string{sealedEmpty, sealedEmpty}

	a := alert.ActiveAlert{ID: uuid.New(), Title: "error rate high", Severity: alert.SeverityHigh}
	condition := alert.AlertCondition{Service: "checkout-api"}

	dispatcher.NotifyAlert(context.Background(), channels, configs, "firing", a, condition)

	if len(failing.sent) != 0 {
		t.Error("failing provider should not have recorded a send")
	}
	if len(working.sent) != 1 {
		t.Fatalf("working provider sent count = %d, want 1 (failure on another channel must not block it)", len(working.sent))
	}
	if working.sent[0].Title != "error rate high" {
		t.Errorf("working provider received Title = %q, want %q", working.sent[0].Title, "error rate high")
	}
}

func TestDispatcherSkipsUnregisteredKind(t *testing.T) {
	sealer, err := cryptoseal.New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("cryptoseal.New() error = %v", err)
	}
	sealedEmpty, _ := sealer.Seal([]byte(`{}`))

	dispatcher := NewDispatcher(NewRegistry(), sealer, testLogger())

	channels := []alert.NotificationChannel{{ID: uuid.New(), Kind: alert.ChannelPagerDuty}}
	configs := []string{sealedEmpty}

	// Should not panic despite no provider being registered for pagerduty.
	dispatcher.NotifyAlert(context.Background(), channels, configs, "firing", alert.ActiveAlert{}, alert.AlertCondition{})
}

func TestSeverityEmoji(t *testing.T) {
	if severityEmoji("critical") == severityEmoji("low") {
		t.Error("severityEmoji should differ by severity")
	}
}

func TestPagerDutySeverityMapsAllLevels(t *testing.T) {
	for _, sev := range []string{"critical", "high", "medium", "low", "unknown"} {
		if pagerDutySeverity(sev) == "" {
			t.Errorf("pagerDutySeverity(%q) returned empty string", sev)
		}
	}
}

func TestStringFieldMissingOrWrongType(t *testing.T) {
	if _, err := stringField(map[string]any{}, "url"); err == nil {
		t.Error("stringField() on missing key should error")
	}
	if _, err := stringField(map[string]any{"url": 5}, "url"); err == nil {
		t.Error("stringField() on wrong type should error")
	}
	v, err := stringField(map[string]any{"url": "https://example.com"}, "url")
	if err != nil || v != "https://example.com" {
		t.Errorf("stringField() = %q, %v, want https://example.com, nil", v, err)
	}
}
