package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:7b", req.Model)
		assert.False(t, req.Stream)

		resp := ollamaChatResponse{Model: req.Model, Done: true}
		resp.Message.Role = "assistant"
		resp.Message.Content = "试验区由国务院批准设立。"
		resp.PromptEvalCount = 120
		resp.EvalCount = 36
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "qwen2.5:7b"}, nil)
	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "试验区是谁批准的？"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "试验区由国务院批准设立。", resp.Content)
	assert.Equal(t, 156, resp.Usage.TotalTokens)
}

func TestOllamaErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusNotFound, types.ErrModelNotFound, false},
		{http.StatusServiceUnavailable, types.ErrServiceUnavailable, true},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, nil)
		_, err := p.Completion(context.Background(), &ChatRequest{})
		require.Error(t, err)
		assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		assert.Equal(t, tt.retryable, types.IsRetryable(err))
		srv.Close()
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, nil)
	assert.NoError(t, p.HealthCheck(context.Background()))
}
