package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen-work", req.Model)
		assert.Equal(t, "extrahiere die Daten", req.Prompt)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		require.NotNil(t, req.Options.Temperature)
		assert.InDelta(t, 0.2, *req.Options.Temperature, 1e-9)

		json.NewEncoder(w).Encode(GenerateResponse{
			Model:    "qwen-work",
			Response: `{"betreff": "Unfall"}`,
			Done:     true,
		})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	temp := 0.2
	resp, err := client.Generate(context.Background(), GenerateRequest{
		Prompt:  "extrahiere die Daten",
		Options: &Options{Temperature: &temp},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"betreff": "Unfall"}`, resp.Response)
	assert.True(t, resp.Done)
}

func TestGenerateExplicitModelWins(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		json.NewEncoder(w).Encode(GenerateResponse{Model: req.Model, Done: true})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithModel("qwen-work"))
	_, err := client.Generate(context.Background(), GenerateRequest{Model: "mistral", Prompt: "x"})
	require.NoError(t, err)
}

func TestGenerateStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "model is loading")
}

func TestGenerateConnectionError(t *testing.T) {
	t.Parallel()

	client := NewClient(WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
}
