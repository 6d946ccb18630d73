// Package extract builds extraction prompts, invokes the completion
// provider, and defensively parses model output into candidate records.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kanzlei-labs/intake-service/internal/classify"
	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/doctext"
	"github.com/kanzlei-labs/intake-service/internal/model"
	"github.com/kanzlei-labs/intake-service/internal/provider"
	"github.com/kanzlei-labs/intake-service/internal/resilience"
)

// extractionTemperature keeps the model conservative; legal intake data must
// not be embellished.
const extractionTemperature = 0.2

// maxTextConcurrency bounds parallel attachment text extraction per request.
const maxTextConcurrency = 4

// Engine turns a parsed email into a CandidateRecord via one provider call.
type Engine struct {
	provider provider.CompletionProvider
	pdf      doctext.PDFExtractor
	cfg      config.PipelineConfig
}

// New creates an extraction engine.
func New(p provider.CompletionProvider, pdf doctext.PDFExtractor, cfg config.PipelineConfig) *Engine {
	return &Engine{provider: p, pdf: pdf, cfg: cfg}
}

// Extract classifies attachments, gathers their text, prompts the provider,
// and parses the completion. Provider failures surface after the retry
// budget (transient) or immediately (rejected); malformed model output never
// errors — the unparseable fields stay absent and a note records why.
func (e *Engine) Extract(ctx context.Context, parsed *model.ParsedEmail) (*model.CandidateRecord, error) {
	contexts, err := e.gatherAttachmentText(ctx, parsed)
	if err != nil {
		return nil, err
	}

	prompt := provider.Prompt{
		System:      systemPrompt,
		User:        BuildPrompt(parsed, contexts, e.cfg),
		Temperature: extractionTemperature,
	}

	policy := resilience.Policy{
		MaxAttempts:    e.cfg.MaxAttempts,
		InitialBackoff: e.cfg.InitialBackoff(),
		MaxBackoff:     e.cfg.MaxBackoff(),
		JitterFraction: 0.25,
		Retryable:      provider.IsUnavailable,
		OnRetry:        resilience.Logger("extract: complete"),
	}

	completion, err := resilience.Do(ctx, policy, func(ctx context.Context) (*provider.Completion, error) {
		return e.provider.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: completion failed")
	}

	record := parseCompletion(completion.Text)
	zap.L().Info("extract: completion parsed",
		zap.String("provider", e.provider.Name()),
		zap.String("model", completion.Model),
		zap.Int("notes", len(record.Notes)),
	)
	return record, nil
}

// gatherAttachmentText classifies each attachment and extracts text from the
// readable ones concurrently. Extraction failures downgrade the attachment
// to unknown instead of failing the request.
func (e *Engine) gatherAttachmentText(ctx context.Context, parsed *model.ParsedEmail) ([]attachmentContext, error) {
	contexts := make([]attachmentContext, len(parsed.Attachments))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxTextConcurrency)
	for i := range parsed.Attachments {
		att := &parsed.Attachments[i]
		if att.Kind == "" {
			att.Kind = classify.Classify(att.Data, att.Filename)
		}

		g.Go(func() error {
			text, err := doctext.FromAttachment(gCtx, e.pdf, *att)
			if err != nil {
				zap.L().Warn("extract: attachment text failed",
					zap.String("filename", att.Filename),
					zap.Error(err),
				)
				att.Kind = model.KindUnknown
				text = ""
			}
			contexts[i] = attachmentContext{attachment: *att, text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "extract: gather attachment text")
	}
	return contexts, nil
}

// parseCompletion maps raw completion text into a CandidateRecord. Model
// output is untrusted: code fences are stripped, the JSON is gated through
// the candidate schema, and anything unusable yields an empty record with a
// diagnostic note instead of an error.
func parseCompletion(text string) *model.CandidateRecord {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return noteOnly("completion contained no JSON object")
	}

	if err := validateCandidateJSON([]byte(cleaned)); err != nil {
		zap.L().Warn("extract: completion failed schema gate", zap.Error(err))
		return noteOnly(fmt.Sprintf("completion failed schema check: %v", eris.Cause(err)))
	}

	normalized, err := normalizeRaw([]byte(cleaned))
	if err != nil {
		return noteOnly(fmt.Sprintf("completion not parseable: %v", err))
	}

	var record model.CandidateRecord
	if err := json.Unmarshal(normalized, &record); err != nil {
		return noteOnly(fmt.Sprintf("completion not mappable: %v", err))
	}
	return &record
}

func noteOnly(note string) *model.CandidateRecord {
	return &model.CandidateRecord{Notes: []string{note}}
}

// normalizeRaw adjusts tolerated shape variations before the typed
// unmarshal: numeric fahrzeug.kw becomes a string.
func normalizeRaw(data []byte) ([]byte, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if vehicle, ok := raw["fahrzeug"].(map[string]any); ok {
		if kw, ok := vehicle["kw"].(float64); ok {
			vehicle["kw"] = fmt.Sprintf("%.0f", kw)
		}
	}
	return json.Marshal(raw)
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or prose wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
