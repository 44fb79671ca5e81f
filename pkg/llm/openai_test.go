package llm_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleter_Complete(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		err := json.NewDecoder(r.Body).Decode(&received)
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test-model","choices":[{"message":{"content":"{\"summary\":\"ok\"}"}}]}`))
	}))
	defer server.Close()

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{
		BaseURL: server.URL + "/v1",
		APIKey:  "secret",
		Model:   "test-model",
	}, slog.Default())

	resp, err := completer.Complete(t.Context(), llm.CompletionRequest{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "plan my day"}},
		SchemaName: "agenda",
		Schema:     map[string]any{"type": "object"},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"summary":"ok"}`, resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, "test-model", received["model"])

	format, ok := received["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAICompleter_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: server.URL}, slog.Default())

	_, err := completer.Complete(t.Context(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.False(t, llm.IsParseError(err))
}

func TestOpenAICompleter_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: server.URL}, slog.Default())

	_, err := completer.Complete(t.Context(), llm.CompletionRequest{})
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestOpenAICompleter_UnreadableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: server.URL}, slog.Default())

	_, err := completer.Complete(t.Context(), llm.CompletionRequest{})
	assert.True(t, llm.IsParseError(err))
}

func TestOpenAICompleter_OversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + strings.Repeat("a", 5<<20) + `"}}]}`))
	}))
	defer server.Close()

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{BaseURL: server.URL}, slog.Default())

	_, err := completer.Complete(t.Context(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrResponseTooLarge)
	assert.False(t, llm.IsParseError(err))
}
