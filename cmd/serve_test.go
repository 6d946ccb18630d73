package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/doctext"
	"github.com/kanzlei-labs/intake-service/internal/extract"
	"github.com/kanzlei-labs/intake-service/internal/intake"
	"github.com/kanzlei-labs/intake-service/internal/model"
	"github.com/kanzlei-labs/intake-service/internal/provider"
	"github.com/kanzlei-labs/intake-service/internal/schema"
	"github.com/kanzlei-labs/intake-service/pkg/backend"
)

type stubProvider struct {
	text string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, p provider.Prompt) (*provider.Completion, error) {
	return &provider.Completion{Text: s.text, Model: "stub-model"}, nil
}

const testEmail = "From: Max Mustermann <max@example.com>\r\n" +
	"To: kanzlei@example.de\r\n" +
	"Subject: Verkehrsunfall\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Ich hatte am 12.03.2024 einen Unfall in Köln.\r\n"

const stubCompletion = `{
  "mandant": {"vorname": "Max", "nachname": "Mustermann", "anrede": "Herr",
    "strasse": null, "plz": null, "ort": null, "email": null, "telefon": null},
  "gegner_versicherung": null,
  "unfall": {"datum": "2024-03-12", "ort": "Köln", "kennzeichen_mandant": null,
    "kennzeichen_gegner": null, "weitere_kennzeichen": []},
  "fahrzeug": null,
  "betreff": "Verkehrsunfall vom 12.03.2024",
  "zusammenfassung": "Auffahrunfall.",
  "handlungsbedarf": null,
  "confidence": {"mandant.vorname": 0.95, "mandant.nachname": 0.95, "unfall.datum": 0.9, "betreff": 0.9}
}`

func newTestEnv(t *testing.T, backendClient backend.Client) *intakeEnv {
	t.Helper()

	cfg = &config.Config{
		Pipeline: config.PipelineConfig{
			MaxAttempts:              3,
			InitialBackoffMS:         1,
			MaxBackoffMS:             2,
			RequestTimeoutSecs:       10,
			FieldConfidenceThreshold: 0.5,
			ReviewThreshold:          0.7,
			MaxBodyChars:             15000,
			MaxAttachmentChars:       8000,
		},
		Intake: config.IntakeConfig{MaxFileSizeMB: 10},
	}

	pdf, err := doctext.NewPDFExtractor(config.DocTextConfig{PDFProvider: "inproc"})
	require.NoError(t, err)

	tracker := intake.NewTracker()
	engine := extract.New(&stubProvider{text: stubCompletion}, pdf, cfg.Pipeline)
	return &intakeEnv{
		Orchestrator: intake.New(engine, schema.NewValidator(cfg.Pipeline), tracker, cfg.Pipeline),
		Tracker:      tracker,
		Backend:      backendClient,
	}
}

func intakeRequest(t *testing.T, attachments map[string][]byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("email_file", "mail.eml")
	require.NoError(t, err)
	_, err = part.Write([]byte(testEmail))
	require.NoError(t, err)

	for name, data := range attachments {
		part, err := writer.CreateFormFile("attachments", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/akte/create-from-email", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCreateFromEmailAcceptsAndCompletes(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newRouter(env)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, intakeRequest(t, map[string][]byte{
		"bericht.txt": []byte("Polizeibericht Inhalt"),
	}))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, "processing", resp["status"])

	require.Eventually(t, func() bool {
		job := env.Tracker.Get(jobID)
		return job != nil && job.Status == model.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job := env.Tracker.Get(jobID)
	require.NotNil(t, job.Result)
	assert.Equal(t, model.OutcomeAutoFileable, job.Result.Outcome)
	// Without a backend the handoff step completes with a note.
	require.Eventually(t, func() bool {
		return env.Tracker.Get(jobID).Steps[model.StepHandoff].Status == model.StepCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCreateFromEmailRequiresEmailFile(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("foo", "bar"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/akte/create-from-email", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email_file")
}

func TestJobEndpointUnknownID(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/job/gibt-es-nicht", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEndpointReturnsTrackedJob(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Tracker.Create("job-xyz")
	router := newRouter(env)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/job/job-xyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-xyz", job.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestHandoffCreatesAkteAndUploadsDocuments(t *testing.T) {
	var akteCreated, docsUploaded int
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/akten/":
			akteCreated++
			json.NewEncoder(w).Encode(backend.Akte{ID: 42, Aktenzeichen: "2024-0815"})
		case "/api/dokumente/":
			docsUploaded++
			json.NewEncoder(w).Encode(backend.Document{ID: int64(docsUploaded)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer backendServer.Close()

	env := newTestEnv(t, backend.NewClient(backendServer.URL, "token"))
	router := newRouter(env)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, intakeRequest(t, map[string][]byte{
		"fahrzeugschein.txt": []byte("Kennzeichen K-AB 123"),
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]

	require.Eventually(t, func() bool {
		job := env.Tracker.Get(jobID)
		return job != nil && job.Steps[model.StepHandoff].Status == model.StepCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, akteCreated)
	assert.Equal(t, 1, docsUploaded)
	assert.Contains(t, env.Tracker.Get(jobID).Steps[model.StepHandoff].Message, "2024-0815")
}
