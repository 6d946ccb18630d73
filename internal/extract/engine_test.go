package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/doctext"
	"github.com/kanzlei-labs/intake-service/internal/model"
	"github.com/kanzlei-labs/intake-service/internal/provider"
)

// stubProvider returns canned completions and records the prompts it saw.
type stubProvider struct {
	text    string
	err     error
	calls   int
	prompts []provider.Prompt
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, p provider.Prompt) (*provider.Completion, error) {
	s.calls++
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Completion{Text: s.text, Model: "stub-model"}, nil
}

func engineCfg() config.PipelineConfig {
	return config.PipelineConfig{
		MaxAttempts:        3,
		InitialBackoffMS:   1,
		MaxBackoffMS:       2,
		MaxBodyChars:       15000,
		MaxAttachmentChars: 8000,
	}
}

func newTestEngine(t *testing.T, p provider.CompletionProvider) *Engine {
	t.Helper()
	pdf, err := doctext.NewPDFExtractor(config.DocTextConfig{PDFProvider: "inproc"})
	require.NoError(t, err)
	return New(p, pdf, engineCfg())
}

const goodCompletion = `{
  "mandant": {"vorname": "Max", "nachname": "Mustermann", "anrede": "Herr",
    "strasse": null, "plz": null, "ort": null, "email": null, "telefon": null},
  "gegner_versicherung": {"name": "HUK", "schadennummer": null, "strasse": null, "plz": null, "ort": null},
  "unfall": {"datum": "2024-03-12", "ort": "Köln", "kennzeichen_mandant": "K-AB 123",
    "kennzeichen_gegner": null, "weitere_kennzeichen": []},
  "fahrzeug": {"typ": "VW Golf", "kw": 110, "ez": "2019-05-02"},
  "betreff": "Verkehrsunfall vom 12.03.2024",
  "zusammenfassung": "Auffahrunfall.",
  "handlungsbedarf": null,
  "confidence": {"mandant.vorname": 0.95, "mandant.nachname": 0.95, "unfall.datum": 0.9, "betreff": 0.9}
}`

func TestExtractParsesCompletion(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{text: goodCompletion}
	engine := newTestEngine(t, stub)

	record, err := engine.Extract(context.Background(), &model.ParsedEmail{Body: "Unfallmeldung"})
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "Max", record.Client.FirstName)
	assert.Equal(t, "Mustermann", record.Client.LastName)
	assert.Equal(t, "K-AB 123", record.Accident.PlateClient)
	// Numeric kw is tolerated and mapped to a string.
	assert.Equal(t, "110", record.Vehicle.PowerKW)
	assert.InDelta(t, 0.95, record.Confidence["mandant.nachname"], 1e-9)
	assert.Empty(t, record.Notes)
}

func TestExtractHandlesFencedCompletion(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{text: "```json\n" + goodCompletion + "\n```"}
	engine := newTestEngine(t, stub)

	record, err := engine.Extract(context.Background(), &model.ParsedEmail{Body: "x"})
	require.NoError(t, err)

	assert.Equal(t, "Mustermann", record.Client.LastName)
	assert.Empty(t, record.Notes)
}

func TestExtractFeedsAttachmentTextIntoPrompt(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{text: goodCompletion}
	engine := newTestEngine(t, stub)

	parsed := &model.ParsedEmail{
		Body: "siehe Anhang",
		Attachments: []model.Attachment{
			{
				Filename: "bericht.txt",
				Data:     []byte("Polizeibericht: Kennzeichen B-XY 99"),
			},
		},
	}

	_, err := engine.Extract(context.Background(), parsed)
	require.NoError(t, err)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0].User, "Polizeibericht: Kennzeichen B-XY 99")
	assert.Equal(t, model.KindPlainText, parsed.Attachments[0].Kind)
}

func TestExtractRetriesUnavailableProvider(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{err: &provider.UnavailableError{Provider: "stub", Err: errors.New("503")}}
	engine := newTestEngine(t, stub)

	_, err := engine.Extract(context.Background(), &model.ParsedEmail{Body: "x"})

	require.Error(t, err)
	assert.True(t, provider.IsUnavailable(err))
	assert.Equal(t, engineCfg().MaxAttempts, stub.calls)
}

func TestExtractDoesNotRetryRejectedProvider(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{err: &provider.RejectedError{Provider: "stub", Err: errors.New("invalid api key")}}
	engine := newTestEngine(t, stub)

	_, err := engine.Extract(context.Background(), &model.ParsedEmail{Body: "x"})

	require.Error(t, err)
	assert.True(t, provider.IsRejected(err))
	assert.Equal(t, 1, stub.calls)
}

func TestExtractMalformedCompletionYieldsNotes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "prose without json", text: "Ich kann diese E-Mail leider nicht verarbeiten."},
		{name: "empty completion", text: ""},
		{name: "truncated json", text: `{"mandant": {"vorname": "Max"`},
		{name: "wrong shape", text: `{"mandant": "Max Mustermann"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := newTestEngine(t, &stubProvider{text: tt.text})

			record, err := engine.Extract(context.Background(), &model.ParsedEmail{Body: "x"})
			require.NoError(t, err)
			require.NotEmpty(t, record.Notes)
			assert.Empty(t, record.Client.FirstName)
		})
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "prose wrapped", in: "Hier ist das Ergebnis: {\"a\": 1} Viel Erfolg!", want: `{"a": 1}`},
		{name: "no object", in: "kein json hier", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestNormalizeRawConvertsNumericKW(t *testing.T) {
	t.Parallel()

	out, err := normalizeRaw([]byte(`{"fahrzeug": {"kw": 110.0}}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"kw":"110"`)

	// String kw passes through.
	out, err = normalizeRaw([]byte(`{"fahrzeug": {"kw": "81"}}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"kw":"81"`)
}
