// Package provider abstracts over generative-model backends. The pipeline
// sees one contract; configuration decides whether completions come from the
// hosted Anthropic API or a locally served model.
package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/pkg/anthropic"
	"github.com/kanzlei-labs/intake-service/pkg/ollama"
)

// Prompt is a structured completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int64
	Temperature float64
}

// Completion is the raw text output of a provider call.
type Completion struct {
	Text  string
	Model string
}

// CompletionProvider is the single contract both backends satisfy.
type CompletionProvider interface {
	// Name identifies the backend in logs.
	Name() string
	// Complete returns a raw completion. Failures are categorized as
	// *UnavailableError (transient, retry with backoff) or *RejectedError
	// (fatal for this request, never retry).
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// UnavailableError marks a transient backend failure: rate limits, 5xx,
// connection trouble. Callers retry these within their budget.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return e.Provider + ": provider unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// RejectedError marks a fatal per-request failure: bad credentials, content
// policy, oversized input. Retrying cannot help.
type RejectedError struct {
	Provider string
	Err      error
}

func (e *RejectedError) Error() string {
	return e.Provider + ": provider rejected request: " + e.Err.Error()
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

// throttled wraps a provider with a shared rate limiter.
type throttled struct {
	inner   CompletionProvider
	limiter *rate.Limiter
}

func (t *throttled) Name() string {
	return t.inner.Name()
}

func (t *throttled) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: rate limit wait")
	}
	return t.inner.Complete(ctx, p)
}

// Throttle wraps a provider so calls respect the given rate and burst.
func Throttle(p CompletionProvider, ratePerSec float64, burst int) CompletionProvider {
	if ratePerSec <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttled{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// New builds the configured provider. Selection happens once here; the
// pipeline never branches on the backend kind.
func New(cfg *config.Config) (CompletionProvider, error) {
	var p CompletionProvider
	switch cfg.Provider.Kind {
	case "remote", "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("provider: remote provider requires anthropic.key")
		}
		p = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
	case "local":
		p = NewOllama(ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModel(cfg.Ollama.Model),
		), cfg.Ollama)
	default:
		return nil, eris.Errorf("provider: unknown kind %q", cfg.Provider.Kind)
	}

	return Throttle(p, cfg.Provider.RatePerSec, cfg.Provider.Burst), nil
}
