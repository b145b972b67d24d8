// Package textgen adapts the Anthropic client into the plain prompt-in,
// text-out generator used for forecasts and routing advice.
package textgen

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/resilience"
	"github.com/sells-group/reroute/pkg/anthropic"
)

// Generator produces free text for a prompt. Callers must tolerate errors
// and fall back to deterministic output.
type Generator interface {
	Generate(ctx context.Context, purpose, prompt string) (string, error)
}

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = eris.New("textgen: empty response")

const systemPrompt = "You are a maritime logistics risk analyst. Answer concisely and follow the requested output format exactly."

// Anthropic is a Generator backed by the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     *resilience.Guard
}

// New wraps client with the configured model, retries and breaker.
func New(client anthropic.Client, cfg config.AnthropicConfig, rc config.ResilienceConfig) *Anthropic {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		guard:     resilience.NewGuard("anthropic", rc, time.Duration(cfg.TimeoutSecs)*time.Second),
	}
}

// FromConfig returns nil when no API key is configured, which disables
// generation everywhere.
func FromConfig(cfg config.AnthropicConfig, rc config.ResilienceConfig) Generator {
	if cfg.Key == "" {
		return nil
	}
	return New(anthropic.NewClient(cfg.Key), cfg, rc)
}

// Generate sends prompt as a single user message.
func (a *Anthropic) Generate(ctx context.Context, purpose, prompt string) (string, error) {
	resp, err := resilience.Call(ctx, a.guard, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			System:    systemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "textgen: generate %s", purpose)
	}
	resp.Usage.LogCost(a.model, purpose)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
