package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// GPTScores is the JSON object the model is asked to return.
type GPTScores struct {
	Scores map[string]float64 `json:"scores"`
}

// GPTOracle scores labels by asking a chat model for per-label probabilities.
// It talks to any OpenAI-compatible endpoint.
type GPTOracle struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewGPTOracle(apiKey, baseURL, model string, maxTokens int, logger *zap.Logger) *GPTOracle {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GPTOracle{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

func (o *GPTOracle) Score(ctx context.Context, text string, labels []string, multiLabel bool) (map[string]float64, error) {
	mode := "The probabilities must sum to 1 across labels."
	if multiLabel {
		mode = "Score every label independently; the probabilities do not need to sum to 1."
	}

	var list strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&list, "- %s\n", l)
	}

	prompt := fmt.Sprintf(`You are a content classifier. For each label below, estimate the probability (0.0 to 1.0) that the statement "%s" is true of the message, where {} is the label.
%s

Labels:
%s
Return ONLY a JSON object with this structure, using the labels verbatim as keys:
{
    "scores": {"label": 0.0}
}

Message: %s`, HypothesisTemplate, mode, list.String(), text)

	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   o.maxTokens,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gpt oracle request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gpt oracle returned no choices")
	}

	var parsed GPTScores
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		o.logger.Error("Failed to parse GPT oracle response",
			zap.Error(err),
			zap.String("response", content))
		return nil, fmt.Errorf("gpt oracle response: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("gpt oracle returned no scores")
	}

	return parsed.Scores, nil
}
