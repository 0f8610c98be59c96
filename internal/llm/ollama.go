package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaGenerator calls a local Ollama server's /api/chat endpoint.
type OllamaGenerator struct {
	client *resty.Client
	topP   float32
	logger *zap.Logger
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

// Ollama expects sampling parameters inside options.
type ollamaOptions struct {
	Temperature   float32 `json:"temperature"`
	NumPredict    int     `json:"num_predict"`
	TopP          float32 `json:"top_p"`
	RepeatPenalty float32 `json:"repeat_penalty"`
}

type ollamaResponse struct {
	Message Message `json:"message"`
}

func NewOllamaGenerator(baseURL string, timeout time.Duration, topP float32, logger *zap.Logger) *OllamaGenerator {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaGenerator{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		topP:   topP,
		logger: logger,
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var out ollamaResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(ollamaRequest{
			Model:    req.Model,
			Messages: req.Messages,
			Stream:   false,
			Options: ollamaOptions{
				Temperature:   req.Temperature,
				NumPredict:    req.MaxTokens,
				TopP:          g.topP,
				RepeatPenalty: 1.1,
			},
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode(), resp.String())
	}

	g.logger.Debug("Ollama chat finished", zap.String("model", req.Model), zap.Duration("took", resp.Time()))
	return out.Message.Content, nil
}
