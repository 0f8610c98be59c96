package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultHuggingFaceURL   = "https://api-inference.huggingface.co"
	DefaultHuggingFaceModel = "facebook/bart-large-mnli"
)

// HuggingFaceOracle calls a zero-shot-classification model on the Hugging Face
// Inference API, e.g. facebook/bart-large-mnli.
type HuggingFaceOracle struct {
	client *resty.Client
	model  string
	logger *zap.Logger
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	MultiLabel         bool     `json:"multi_label"`
	HypothesisTemplate string   `json:"hypothesis_template"`
}

type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
}

func NewHuggingFaceOracle(baseURL, token, model string, timeout time.Duration, logger *zap.Logger) *HuggingFaceOracle {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HuggingFaceOracle{
		client: client,
		model:  model,
		logger: logger,
	}
}

func (o *HuggingFaceOracle) Score(ctx context.Context, text string, labels []string, multiLabel bool) (map[string]float64, error) {
	var out zeroShotResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(zeroShotRequest{
			Inputs: text,
			Parameters: zeroShotParameters{
				CandidateLabels:    labels,
				MultiLabel:         multiLabel,
				HypothesisTemplate: HypothesisTemplate,
			},
		}).
		SetResult(&out).
		Post("/models/" + o.model)
	if err != nil {
		return nil, fmt.Errorf("zero-shot request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("zero-shot request: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Labels) == 0 || len(out.Labels) != len(out.Scores) {
		return nil, fmt.Errorf("zero-shot response malformed: %d labels, %d scores", len(out.Labels), len(out.Scores))
	}

	scores := make(map[string]float64, len(out.Labels))
	for i, l := range out.Labels {
		scores[l] = out.Scores[i]
	}

	o.logger.Debug("Zero-shot scores received",
		zap.String("model", o.model),
		zap.String("top_label", out.Labels[0]),
		zap.Float64("top_score", out.Scores[0]))

	return scores, nil
}
