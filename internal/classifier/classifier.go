package classifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrClassifierUnavailable is returned when the guard oracle cannot be reached
// or returns something unusable.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Oracle scores a text against caller-supplied labels. With multiLabel set,
// each label gets an independent confidence.
type Oracle interface {
	Score(ctx context.Context, text string, labels []string, multiLabel bool) (map[string]float64, error)
}

// Result holds one confidence per category plus the highest-scoring one.
// Top is informational; refusal decisions are made by Decide.
type Result struct {
	Scores        map[Category]float64 `json:"scores"`
	Top           Category             `json:"top"`
	TopConfidence float64              `json:"top_confidence"`
}

// Score returns the confidence for c, zero when absent.
func (r Result) Score(c Category) float64 {
	return r.Scores[c]
}

type Classifier struct {
	oracle Oracle
	logger *zap.Logger
}

func NewClassifier(oracle Oracle, logger *zap.Logger) *Classifier {
	return &Classifier{
		oracle: oracle,
		logger: logger,
	}
}

// Classify scores text against every category. Oracle failures are wrapped in
// ErrClassifierUnavailable and are not retried.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	raw, err := c.oracle.Score(ctx, text, Descriptions(), true)
	if err != nil {
		c.logger.Error("Guard oracle call failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	result := Result{Scores: make(map[Category]float64, len(categories))}
	for _, cat := range categories {
		result.Scores[cat] = 0
	}

	for label, score := range raw {
		cat, ok := CategoryForDescription(label)
		if !ok {
			c.logger.Warn("Ignoring unknown oracle label", zap.String("label", label))
			continue
		}
		result.Scores[cat] = clamp(score)
	}

	result.Top, result.TopConfidence = InDomainCoaching, result.Scores[InDomainCoaching]
	for _, cat := range categories {
		if s := result.Scores[cat]; s > result.TopConfidence {
			result.Top, result.TopConfidence = cat, s
		}
	}

	return result, nil
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
