package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP intake API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIntake()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting intake server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter wires the intake API routes.
func newRouter(env *intakeEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "intake-service",
			"status":  "running",
		})
	})

	r.Post("/api/akte/create-from-email", func(w http.ResponseWriter, req *http.Request) {
		handleCreateFromEmail(env, w, req)
	})

	r.Get("/api/job/{jobID}", func(w http.ResponseWriter, req *http.Request) {
		job := env.Tracker.Get(chi.URLParam(req, "jobID"))
		if job == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	return r
}

// handleCreateFromEmail accepts a multipart intake request with one
// email_file part and any number of attachments parts, starts the pipeline
// asynchronously, and returns the job ID for polling.
func handleCreateFromEmail(env *intakeEnv, w http.ResponseWriter, req *http.Request) {
	maxBytes := int64(cfg.Intake.MaxFileSizeMB) << 20
	req.Body = http.MaxBytesReader(w, req.Body, maxBytes)
	if err := req.ParseMultipartForm(maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return
	}

	emailFile, header, err := req.FormFile("email_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email_file is required"})
		return
	}
	defer emailFile.Close()

	raw := model.RawIntake{EmailFilename: header.Filename}
	raw.Email, err = io.ReadAll(emailFile)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read email_file"})
		return
	}

	if req.MultipartForm != nil {
		raw.Uploads, err = readUploads(req.MultipartForm.File["attachments"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read attachments"})
			return
		}
	}

	jobID := uuid.NewString()
	env.Tracker.Create(jobID)

	// Detach from the request context; the client polls for the outcome.
	go func() {
		result, err := env.Orchestrator.Process(context.Background(), jobID, raw)
		if err != nil {
			zap.L().Error("intake failed",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			return
		}
		handoff(context.Background(), env, result, raw.Uploads)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(model.JobStatusProcessing),
	})
}

// readUploads drains the separately uploaded attachment parts.
func readUploads(headers []*multipart.FileHeader) ([]model.Attachment, error) {
	uploads := make([]model.Attachment, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, model.Attachment{
			Filename:     h.Filename,
			DeclaredType: h.Header.Get("Content-Type"),
			Data:         data,
			Size:         len(data),
		})
	}
	return uploads, nil
}

// handoff pushes a finished intake to the case-management backend: a new
// Akte with its documents when the record is auto-fileable, a review ticket
// otherwise. A handoff failure never undoes the pipeline result; the job
// stays completed and the step records the error.
func handoff(ctx context.Context, env *intakeEnv, result *model.IntakeResult, uploads []model.Attachment) {
	if env.Backend == nil {
		env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepCompleted, "kein Backend konfiguriert")
		return
	}

	log := zap.L().With(zap.String("job_id", result.JobID))
	env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepProcessing, "Übergabe an Kanzleisoftware")

	if result.Outcome == model.OutcomeReviewRequired {
		ticket, err := env.Backend.CreateTicket(ctx, *result.Ticket)
		if err != nil {
			log.Error("handoff: create ticket failed", zap.Error(err))
			env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepFailed, err.Error())
			return
		}
		log.Info("handoff: review ticket created", zap.Int64("ticket_id", ticket.ID))
		env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepCompleted, fmt.Sprintf("Ticket %d angelegt", ticket.ID))
		return
	}

	akte, err := env.Backend.CreateAkte(ctx, result.Record)
	if err != nil {
		log.Error("handoff: create akte failed", zap.Error(err))
		env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepFailed, err.Error())
		return
	}
	for _, att := range uploads {
		if _, err := env.Backend.UploadDocument(ctx, akte.ID, att); err != nil {
			log.Warn("handoff: document upload failed",
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
		}
	}
	log.Info("handoff: akte created",
		zap.Int64("akte_id", akte.ID),
		zap.String("aktenzeichen", akte.Aktenzeichen),
	)
	env.Tracker.UpdateStep(result.JobID, model.StepHandoff, model.StepCompleted, fmt.Sprintf("Akte %s angelegt", akte.Aktenzeichen))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
