package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenAIGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"llama",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  It makes sense to feel worried.  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":8,"total_tokens":18}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("groq-key", srv.URL+"/openai/v1", 0.9, zaptest.NewLogger(t))
	out, err := g.Generate(context.Background(), Request{
		Model:       "llama-3.1-8b-instant",
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Temperature: 0.25,
		MaxTokens:   180,
	})
	require.NoError(t, err)
	assert.Equal(t, "  It makes sense to feel worried.  ", out)

	assert.Equal(t, "llama-3.1-8b-instant", got["model"])
	assert.EqualValues(t, 180, got["max_tokens"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIGenerator_Non2xxIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("k", srv.URL+"/v1", 0.9, zaptest.NewLogger(t))
	_, err := g.Generate(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestOllamaGenerator_Generate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"Try saying this."},"done":true}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, 5*time.Second, 0.9, zaptest.NewLogger(t))
	out, err := g.Generate(context.Background(), Request{
		Model:       "llama3.1",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: 0.25,
		MaxTokens:   180,
	})
	require.NoError(t, err)
	assert.Equal(t, "Try saying this.", out)
	assert.False(t, got.Stream)
	assert.Equal(t, 180, got.Options.NumPredict)
	assert.InDelta(t, 0.25, got.Options.Temperature, 1e-6)
}

func TestOllamaGenerator_TimeoutIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, 5*time.Second, 0.9, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, Request{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (c *countingGenerator) Generate(_ context.Context, _ Request) (string, error) {
	c.calls.Add(1)
	return "ok", c.err
}

func TestRateLimited_PassesThrough(t *testing.T) {
	next := &countingGenerator{}
	g := NewRateLimited(next, 0, 0)

	for i := 0; i < 5; i++ {
		out, err := g.Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	assert.EqualValues(t, 5, next.calls.Load())
}

func TestRateLimited_WaitBoundedByContext(t *testing.T) {
	next := &countingGenerator{}
	g := NewRateLimited(next, 1, 1) // one request per minute

	_, err := g.Generate(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.EqualValues(t, 1, next.calls.Load())
}
