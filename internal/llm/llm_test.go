package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1718000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Звёзды благосклонны"}}]
}`

func TestGenerate(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/openai/v1/", APIKey: "sk-test", Model: "gpt-4o", MaxTokens: 700, Timeout: 5 * time.Second}, srv.Client())
	text, err := c.Generate(context.Background(), "persona", "prompt text")
	require.NoError(t, err)

	assert.Equal(t, "Звёзды благосклонны", text)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 700, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "persona", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "prompt text", got.Messages[1].Content)
}

func TestGenerateUpstreamError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream down"}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Model: "gpt-4o"}, srv.Client())
	_, err := c.Generate(context.Background(), "s", "p")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retries")
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Model: "gpt-4o"}, srv.Client())
	_, err := c.Generate(context.Background(), "s", "p")
	assert.True(t, errors.Is(err, ErrNoCompletion))
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL + "/", Model: "gpt-4o", Timeout: 50 * time.Millisecond}, srv.Client())
	start := time.Now()
	_, err := c.Generate(context.Background(), "s", "p")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
