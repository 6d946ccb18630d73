package provider

import (
	"context"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/resilience"
	"github.com/kanzlei-labs/intake-service/pkg/anthropic"
)

const defaultMaxTokens = 2048

// anthropicProvider serves completions from the hosted Anthropic API.
type anthropicProvider struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// NewAnthropic wraps an Anthropic client as a CompletionProvider.
func NewAnthropic(client anthropic.Client, cfg config.AnthropicConfig) CompletionProvider {
	return &anthropicProvider{client: client, cfg: cfg}
}

func (a *anthropicProvider) Name() string {
	return "anthropic"
}

func (a *anthropicProvider) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &p.Temperature,
	}
	if p.System != "" {
		req.System = anthropic.CachedSystemBlocks(p.System)
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return nil, a.classify(ctx, err)
	}

	return &Completion{Text: resp.Text(), Model: resp.Model}, nil
}

// classify maps SDK errors onto the provider taxonomy.
func (a *anthropicProvider) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if status, ok := anthropic.StatusCode(err); ok {
		if resilience.IsTransientHTTPStatus(status) {
			return &UnavailableError{Provider: a.Name(), Err: err}
		}
		return &RejectedError{Provider: a.Name(), Err: err}
	}
	// No HTTP status means the request never completed: treat as transient.
	return &UnavailableError{Provider: a.Name(), Err: err}
}
