// Package intake runs the end-to-end pipeline for one email: parse, extract,
// validate, decide. It owns no persistence and talks to no backend; the
// caller hands the result off.
package intake

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kanzlei-labs/intake-service/internal/classify"
	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/extract"
	"github.com/kanzlei-labs/intake-service/internal/mail"
	"github.com/kanzlei-labs/intake-service/internal/model"
	"github.com/kanzlei-labs/intake-service/internal/schema"
)

// State is the orchestrator's position in the intake lifecycle.
type State string

const (
	StateReceived       State = "received"
	StateParsing        State = "parsing"
	StateExtracting     State = "extracting"
	StateValidating     State = "validating"
	StateAutoFileable   State = "auto_fileable"
	StateReviewRequired State = "review_required"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Orchestrator sequences the intake pipeline. Each call to Process is an
// independent unit of work; concurrent requests share nothing but the
// injected collaborators, which are themselves request-safe.
type Orchestrator struct {
	engine    *extract.Engine
	validator *schema.Validator
	tracker   *Tracker
	cfg       config.PipelineConfig
}

// New creates an orchestrator with all dependencies injected.
func New(engine *extract.Engine, validator *schema.Validator, tracker *Tracker, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		validator: validator,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// Process runs one intake request through the state machine
// Received → Parsing → Extracting → Validating → {AutoFileable |
// ReviewRequired} → Completed. Parse and provider failures land in Failed
// and return a categorized error; validation never fails, it only downgrades
// the outcome.
func (o *Orchestrator) Process(ctx context.Context, jobID string, raw model.RawIntake) (*model.IntakeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout())
	defer cancel()

	log := zap.L().With(zap.String("job_id", jobID))
	state := StateReceived
	advance := func(next State) {
		log.Info("intake: state transition",
			zap.String("from", string(state)),
			zap.String("to", string(next)),
		)
		state = next
	}

	// Parsing
	advance(StateParsing)
	o.tracker.UpdateStep(jobID, model.StepEmailAnalysis, model.StepProcessing, "E-Mail wird analysiert")

	parsed, err := mail.Parse(raw.Email)
	if err != nil {
		advance(StateFailed)
		o.tracker.UpdateStep(jobID, model.StepEmailAnalysis, model.StepFailed, err.Error())
		o.tracker.Fail(jobID, err.Error())
		return nil, eris.Wrap(err, "intake: parse email")
	}
	parsed.Attachments = append(parsed.Attachments, classifyUploads(raw.Uploads)...)
	o.tracker.UpdateStep(jobID, model.StepEmailAnalysis, model.StepCompleted, "")

	// Extracting
	advance(StateExtracting)
	o.tracker.UpdateStep(jobID, model.StepExtraction, model.StepProcessing, "Daten werden extrahiert")

	candidate, err := o.engine.Extract(ctx, parsed)
	if err != nil {
		advance(StateFailed)
		o.tracker.UpdateStep(jobID, model.StepExtraction, model.StepFailed, err.Error())
		o.tracker.Fail(jobID, err.Error())
		return nil, err
	}
	o.tracker.UpdateStep(jobID, model.StepExtraction, model.StepCompleted, "")

	// Validating
	advance(StateValidating)
	o.tracker.UpdateStep(jobID, model.StepValidation, model.StepProcessing, "Daten werden geprüft")
	record := o.validator.Validate(candidate)
	o.tracker.UpdateStep(jobID, model.StepValidation, model.StepCompleted, "")

	result := &model.IntakeResult{
		JobID:  jobID,
		Record: *record,
	}
	if record.RequiresReview {
		advance(StateReviewRequired)
		result.Outcome = model.OutcomeReviewRequired
		result.Ticket = &model.ReviewTicket{
			Record:    *record,
			Issues:    record.Issues,
			CreatedAt: time.Now().UTC(),
		}
	} else {
		advance(StateAutoFileable)
		result.Outcome = model.OutcomeAutoFileable
	}

	advance(StateCompleted)
	o.tracker.Complete(jobID, result)

	log.Info("intake: completed",
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("aggregate_confidence", record.AggregateConfidence),
		zap.Int("issues", len(record.Issues)),
		zap.Int("attachments", len(parsed.Attachments)),
	)
	return result, nil
}

// classifyUploads tags separately uploaded blobs so they flow through the
// same pipeline as MIME attachments.
func classifyUploads(uploads []model.Attachment) []model.Attachment {
	out := make([]model.Attachment, 0, len(uploads))
	for _, u := range uploads {
		if u.Kind == "" {
			u.Kind = classify.Classify(u.Data, u.Filename)
		}
		u.Size = len(u.Data)
		out = append(out, u)
	}
	return out
}
