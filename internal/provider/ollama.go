package provider

import (
	"context"
	"errors"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/resilience"
	"github.com/kanzlei-labs/intake-service/pkg/ollama"
)

// ollamaProvider serves completions from a locally hosted model. Same
// contract as the remote provider, slower and more often unreachable.
type ollamaProvider struct {
	client ollama.Client
	cfg    config.OllamaConfig
}

// NewOllama wraps an Ollama client as a CompletionProvider.
func NewOllama(client ollama.Client, cfg config.OllamaConfig) CompletionProvider {
	return &ollamaProvider{client: client, cfg: cfg}
}

func (o *ollamaProvider) Name() string {
	return "ollama"
}

func (o *ollamaProvider) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	req := ollama.GenerateRequest{
		Model:  o.cfg.Model,
		Prompt: p.User,
		System: p.System,
		Stream: false,
	}

	temp := p.Temperature
	opts := ollama.Options{Temperature: &temp}
	if p.MaxTokens > 0 {
		n := int(p.MaxTokens)
		opts.NumPredict = &n
	}
	req.Options = &opts

	resp, err := o.client.Generate(ctx, req)
	if err != nil {
		return nil, o.classify(ctx, err)
	}

	return &Completion{Text: resp.Response, Model: resp.Model}, nil
}

// classify maps local-server errors onto the provider taxonomy.
func (o *ollamaProvider) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var statusErr *ollama.StatusError
	if errors.As(err, &statusErr) {
		if resilience.IsTransientHTTPStatus(statusErr.StatusCode) {
			return &UnavailableError{Provider: o.Name(), Err: err}
		}
		return &RejectedError{Provider: o.Name(), Err: err}
	}
	// Connection failures dominate here: the GPU box is often just down.
	return &UnavailableError{Provider: o.Name(), Err: err}
}
