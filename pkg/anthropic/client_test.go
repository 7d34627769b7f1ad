package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func messageServer(t *testing.T, status int, check func(body gjson.Result)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if check != nil {
			check(gjson.ParseBytes(raw))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
				"type":  "error",
				"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"market": 0.9}`},
			},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":            120,
				"output_tokens":           30,
				"cache_read_input_tokens": 100,
			},
		})
	}))
}

func TestCreateMessage(t *testing.T) {
	ts := messageServer(t, http.StatusOK, func(body gjson.Result) {
		assert.Equal(t, "claude-haiku-4-5-20251001", body.Get("model").String())
		assert.Equal(t, "You are the connoisseur.", body.Get("system.0.text").String())
		assert.Equal(t, "ephemeral", body.Get("system.0.cache_control.type").String())
		assert.Equal(t, "user", body.Get("messages.0.role").String())
	})
	defer ts.Close()

	client := NewClient("test-key", option.WithBaseURL(ts.URL))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   256,
		System:      "You are the connoisseur.",
		CacheSystem: true,
		Messages:    []Message{{Role: "user", Content: "score this"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, `{"market": 0.9}`, resp.Text())
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(100), resp.Usage.CacheReadInputTokens)
}

func TestCreateMessage_Overloaded(t *testing.T) {
	ts := messageServer(t, 529, nil)
	defer ts.Close()

	client := NewClient("test-key", option.WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
	assert.Zero(t, u.EstimateCost("unknown-model"))
	assert.False(t, IsRetryable(assert.AnError))
}
