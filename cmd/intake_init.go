package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kanzlei-labs/intake-service/internal/doctext"
	"github.com/kanzlei-labs/intake-service/internal/extract"
	"github.com/kanzlei-labs/intake-service/internal/intake"
	"github.com/kanzlei-labs/intake-service/internal/provider"
	"github.com/kanzlei-labs/intake-service/internal/schema"
	"github.com/kanzlei-labs/intake-service/pkg/backend"
)

// intakeEnv holds the initialized provider, pipeline, and optional backend
// client shared by the serve and process commands.
type intakeEnv struct {
	Orchestrator *intake.Orchestrator
	Tracker      *intake.Tracker
	Backend      backend.Client // nil when no backend is configured
}

// initIntake builds the completion provider, document text extractor, and
// the orchestrator from config.
func initIntake() (*intakeEnv, error) {
	p, err := provider.New(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	pdf, err := doctext.NewPDFExtractor(cfg.DocText)
	if err != nil {
		return nil, eris.Wrap(err, "init pdf extractor")
	}

	engine := extract.New(p, pdf, cfg.Pipeline)
	validator := schema.NewValidator(cfg.Pipeline)
	tracker := intake.NewTracker()

	var backendClient backend.Client
	if cfg.Backend.URL != "" {
		backendClient = backend.NewClient(cfg.Backend.URL, cfg.Backend.Token)
		zap.L().Info("backend handoff enabled", zap.String("url", cfg.Backend.URL))
	} else {
		zap.L().Info("no backend configured, results stay in the job tracker")
	}

	zap.L().Info("intake pipeline ready",
		zap.String("provider", p.Name()),
		zap.Float64("field_threshold", cfg.Pipeline.FieldConfidenceThreshold),
		zap.Float64("review_threshold", cfg.Pipeline.ReviewThreshold),
	)

	return &intakeEnv{
		Orchestrator: intake.New(engine, validator, tracker, cfg.Pipeline),
		Tracker:      tracker,
		Backend:      backendClient,
	}, nil
}
