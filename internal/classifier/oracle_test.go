package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHuggingFaceOracle_Score(t *testing.T) {
	var got zeroShotRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/facebook/bart-large-mnli", r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(zeroShotResponse{
			Sequence: got.Inputs,
			Labels:   []string{SpyingOrHacking.Description(), InDomainCoaching.Description()},
			Scores:   []float64{0.81, 0.12},
		})
	}))
	defer srv.Close()

	o := NewHuggingFaceOracle(srv.URL, "hf-token", "facebook/bart-large-mnli", 5*time.Second, zaptest.NewLogger(t))
	scores, err := o.Score(context.Background(), "track her phone", Descriptions(), true)
	require.NoError(t, err)

	assert.Equal(t, "track her phone", got.Inputs)
	assert.True(t, got.Parameters.MultiLabel)
	assert.Equal(t, HypothesisTemplate, got.Parameters.HypothesisTemplate)
	assert.Len(t, got.Parameters.CandidateLabels, len(Categories()))
	assert.Equal(t, 0.81, scores[SpyingOrHacking.Description()])
	assert.Equal(t, 0.12, scores[InDomainCoaching.Description()])
}

func TestHuggingFaceOracle_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewHuggingFaceOracle(srv.URL, "", "m", 5*time.Second, zaptest.NewLogger(t))
	_, err := o.Score(context.Background(), "x", Descriptions(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHuggingFaceOracle_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"labels":["a","b"],"scores":[0.5]}`))
	}))
	defer srv.Close()

	o := NewHuggingFaceOracle(srv.URL, "", "m", 5*time.Second, zaptest.NewLogger(t))
	_, err := o.Score(context.Background(), "x", Descriptions(), true)
	require.Error(t, err)
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "judge",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
}

func TestGPTOracle_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "judge", req["model"])

		body, _ := json.Marshal(GPTScores{Scores: map[string]float64{
			LegalAdvice.Description(): 0.9,
		}})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionBody(string(body)))
	}))
	defer srv.Close()

	o := NewGPTOracle("key", srv.URL+"/v1", "judge", 200, zaptest.NewLogger(t))
	scores, err := o.Score(context.Background(), "custody question", Descriptions(), true)
	require.NoError(t, err)
	assert.Equal(t, 0.9, scores[LegalAdvice.Description()])
}

func TestGPTOracle_UnparseableIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionBody("I think it's legal advice"))
	}))
	defer srv.Close()

	o := NewGPTOracle("key", srv.URL+"/v1", "judge", 200, zaptest.NewLogger(t))
	_, err := o.Score(context.Background(), "x", Descriptions(), true)
	require.Error(t, err)
}
