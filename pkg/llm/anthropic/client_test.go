package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/llm"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})

	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		require.Len(t, req.Messages[0].Content, 1)
		assert.Equal(t, "design a cache", req.Messages[0].Content[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content:    []contentBlock{{Type: "text", Text: "use an LRU"}},
			StopReason: "end_turn",
			Usage:      usage{InputTokens: 9, OutputTokens: 12},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Model: "test-model", BaseURL: server.URL})

	comp, err := client.Complete(context.Background(), "design a cache", 256)
	require.NoError(t, err)
	assert.Equal(t, "use an LRU", comp.Text)
	assert.Equal(t, int64(9), comp.TokensIn)
	assert.Equal(t, int64(12), comp.TokensOut)
}

func TestCompleteSkipsNonTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content: []contentBlock{
				{Type: "thinking"},
				{Type: "text", Text: "the actual answer"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})

	comp, err := client.Complete(context.Background(), "hi", 16)
	require.NoError(t, err)
	assert.Equal(t, "the actual answer", comp.Text)
}

func TestCompleteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "hi", 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "hi", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestCompleteNoTextContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesResponse{
			Content: []contentBlock{{Type: "tool_use"}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "hi", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}
