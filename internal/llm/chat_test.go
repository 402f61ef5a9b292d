package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai/gpt-4o-mini", p.Name())
	})

	t.Run("openrouter", func(t *testing.T) {
		p, err := NewProvider(Config{Provider: "openrouter", APIKey: "or-test", Model: "openai/gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "openrouter/openai/gpt-4o", p.Name())
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := NewProvider(Config{Provider: "openai"})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "oracle"})
		assert.Error(t, err)
	})
}

func TestChatProviderComplete(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "resp-1",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  {\"ok\": true}  "}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	got, err := p.Complete(context.Background(), "プロンプト", CompletionOpts{
		MaxTokens:   500,
		Temperature: 0.1,
		Format:      "json",
		System:      "システム",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, got, "response content is trimmed")
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "プロンプト", captured.Messages[1].Content)
	assert.Equal(t, 500, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestChatProviderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "x", CompletionOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestChatProviderAPIErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded"},
		})
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "x", CompletionOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestChatProviderEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "resp-1", "choices": []any{}})
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "x", CompletionOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
