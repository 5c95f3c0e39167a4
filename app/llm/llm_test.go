package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gateway(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("sk-test", srv.URL+"/v1", "gpt-4o-mini", 2*time.Second, zap.NewNop())
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	c := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "How is VOLV-B doing?", body.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"  Volvo is up 0.6% today. "},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}}`))
	})

	got, err := c.Complete(context.Background(), Prompt{System: "You are a trading copilot.", User: "How is VOLV-B doing?"})
	require.NoError(t, err)
	require.Equal(t, "Volvo is up 0.6% today.", got)
}

func TestCompleteEmptyChoices(t *testing.T) {
	c := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})
	_, err := c.Complete(context.Background(), Prompt{User: "hi"})
	require.ErrorIs(t, err, ErrEmptyReply)
}

func TestCompleteGatewayError(t *testing.T) {
	c := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	})
	_, err := c.Complete(context.Background(), Prompt{User: "hi"})
	require.Error(t, err)
}

func TestUnconfiguredClient(t *testing.T) {
	c := New("", "", "gpt-4o-mini", time.Second, zap.NewNop())
	require.False(t, c.Configured())
	_, err := c.Complete(context.Background(), Prompt{User: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
