package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/pulsegrid/controlplane/pkg/incident"
)

// Completion is the raw result of a single model call, independent of how it
// was produced (real API or mock fallback).
type Completion struct {
	Hypotheses   []GeneratedHypothesis
	InputTokens  int
	OutputTokens int
}

// Generator produces hypotheses for an incident. Satisfied by both the real
// anthropicGenerator and the deterministic mockGenerator.
type Generator interface {
	Generate(ctx context.Context, inc incident.Incident, maxTokens int) (Completion, error)
}

// anthropicGenerator calls the configured Claude model via
// anthropics/anthropic-sdk-go.
type anthropicGenerator struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicGenerator builds a Generator backed by the Anthropic API. apiKey
// and baseURL come from config.AIModelAPIKey/AIModelEndpoint; model from
// config.AIModel.
func NewAnthropicGenerator(apiKey, baseURL, model string) Generator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicGenerator{client: &client, model: anthropic.Model(model)}
}

func (g *anthropicGenerator) Generate(ctx context.Context, inc incident.Incident, maxTokens int) (Completion, error) {
	prompt := buildPrompt(inc)

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("calling anthropic messages api: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	hypotheses, err := parseHypotheses(text)
	if err != nil {
		return Completion{}, fmt.Errorf("parsing model response: %w", err)
	}

	return Completion{
		Hypotheses:   hypotheses,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// buildPrompt renders the incident's facts into a short instruction asking
// for ranked JSON hypotheses.
func buildPrompt(inc incident.Incident) string {
	return fmt.Sprintf(`You are an incident response assistant. Given the incident below, propose up to 3 ranked root-cause hypotheses.

Service: %s
Severity: %s
Title: %s
Description: %s

Respond with ONLY a JSON array, each element shaped as:
{"claim": string, "description": string, "confidence_score": number between 0 and 1, "evidence": [string, ...]}`,
		inc.Service, inc.Severity, inc.Title, inc.Description)
}

// parseHypotheses tolerantly extracts a JSON array of hypotheses from a model
// response that may be wrapped in a markdown code fence.
func parseHypotheses(text string) ([]GeneratedHypothesis, error) {
	clean := stripCodeFence(text)
	if !gjson.Valid(clean) {
		return nil, fmt.Errorf("model response is not valid JSON")
	}

	result := gjson.Parse(clean)
	if !result.IsArray() {
		return nil, fmt.Errorf("model response is not a JSON array")
	}

	var out []GeneratedHypothesis
	for _, item := range result.Array() {
		var evidence []string
		item.Get("evidence").ForEach(func(_, v gjson.Result) bool {
			evidence = append(evidence, v.String())
			return true
		})
		out = append(out, GeneratedHypothesis{
			Claim:           item.Get("claim").String(),
			Description:     item.Get("description").String(),
			ConfidenceScore: item.Get("confidence_score").Float(),
			Evidence:        evidence,
		})
	}
	return out, nil
}
