package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulsegrid/controlplane/pkg/alert"
)

// webhookPayload is the generic JSON body POSTed to webhook/Teams/PagerDuty
// targets; none of these platforms has a Go SDK anywhere in the reference
// corpus, so each is a thin net/http POST (see DESIGN.md).
type webhookPayload struct {
	AlertID     string  `json:"alert_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Action      string  `json:"action"`
	Service     string  `json:"service"`
	MetricValue float64 `json:"metric_value"`
}

func postJSON(ctx context.Context, url string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookProvider POSTs the generic payload to an arbitrary configured URL.
type WebhookProvider struct{}

func NewWebhookProvider() *WebhookProvider { return &WebhookProvider{} }

func (p *WebhookProvider) Kind() alert.ChannelKind { return alert.ChannelWebhook }

func (p *WebhookProvider) Send(ctx context.Context, config map[string]any, msg Message) error {
	url, err := stringField(config, "url")
	if err != nil {
		return err
	}
	return postJSON(ctx, url, webhookPayload{
		AlertID: msg.AlertID, Title: msg.Title, Description: msg.Description,
		Severity: msg.Severity, Action: msg.Action, Service: msg.Service, MetricValue: msg.MetricValue,
	})
}

// TeamsProvider posts a simplified card-shaped payload to a Microsoft Teams
// incoming webhook URL.
type TeamsProvider struct{}

func NewTeamsProvider() *TeamsProvider { return &TeamsProvider{} }

func (p *TeamsProvider) Kind() alert.ChannelKind { return alert.ChannelTeams }

func (p *TeamsProvider) Send(ctx context.Context, config map[string]any, msg Message) error {
	url, err := stringField(config, "webhook_url")
	if err != nil {
		return err
	}

	card := map[string]any{
		"@type":    "MessageCard",
		"@context": "http://schema.org/extensions",
		"summary":  msg.Title,
		"title":    fmt.Sprintf("[%s] %s", msg.Action, msg.Title),
		"text":     fmt.Sprintf("%s\n\nservice: %s, severity: %s, value: %v", msg.Description, msg.Service, msg.Severity, msg.MetricValue),
	}
	return postJSON(ctx, url, card)
}

// PagerDutyProvider triggers/resolves an event via the Events API v2
// "integration key" contract.
type PagerDutyProvider struct{}

func NewPagerDutyProvider() *PagerDutyProvider { return &PagerDutyProvider{} }

func (p *PagerDutyProvider) Kind() alert.ChannelKind { return alert.ChannelPagerDuty }

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

func (p *PagerDutyProvider) Send(ctx context.Context, config map[string]any, msg Message) error {
	routingKey, err := stringField(config, "integration_key")
	if err != nil {
		return err
	}

	action := "trigger"
	if msg.Action == "resolved" {
		action = "resolve"
	}

	payload := map[string]any{
		"routing_key":  routingKey,
		"event_action": action,
		"dedup_key":    msg.AlertID,
		"payload": map[string]any{
			"summary":  msg.Title,
			"source":   msg.Service,
			"severity": pagerDutySeverity(msg.Severity),
		},
	}
	return postJSON(ctx, pagerDutyEventsURL, payload)
}

func pagerDutySeverity(severity string) string {
	switch severity {
	case "critical":
		return "critical"
	case "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "info"
	}
}
