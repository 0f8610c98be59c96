package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/pace-bot/internal/llm"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultWindow             = 6
	DefaultDistillTemperature = 0.1
	DefaultDistillMaxTokens   = 150
)

// ErrEmptyContext is returned when the backend answers with an empty summary.
var ErrEmptyContext = errors.New("distillation returned empty context")

const derivationPrompt = `You maintain a short running summary of a coaching conversation between a parent and PACE, an empathy coach for parent-teen conflict.

Current summary:
%s

Recent conversation:
%s
Update the summary so it keeps the facts a follow-up message might refer to: the child's name and age, the recurring behaviour, when it happens, how the parent feels, and anything already suggested. Drop greetings and repetition. Write at most 4 sentences of plain text with no preamble.`

// Distiller folds the most recent turns and the previous summary into a new
// derived context with one low-temperature generation call.
type Distiller struct {
	generator   llm.Generator
	model       string
	window      int
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

func NewDistiller(generator llm.Generator, model string, window int, temperature float32, maxTokens int, logger *zap.Logger) *Distiller {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Distiller{
		generator:   generator,
		model:       model,
		window:      window,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// Distill replaces the session's derived context. It is a no-op for sessions
// without turns. On failure the previous context is kept; the error is logged
// and returned only so callers can count it.
func (d *Distiller) Distill(ctx context.Context, sess *Session) error {
	recent := sess.RecentTurns(d.window)
	if len(recent) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(derivationPrompt, sess.DerivedContext(), Transcript(recent))

	out, err := d.generator.Generate(ctx, llm.Request{
		Model:       d.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
	})
	if err != nil {
		d.logger.Warn("Failed to update derived context",
			zap.Error(err),
			zap.String("session_id", sess.ID()))
		return err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		d.logger.Warn("Distillation returned empty context, keeping previous",
			zap.String("session_id", sess.ID()))
		return ErrEmptyContext
	}

	sess.SetDerivedContext(out)
	d.logger.Debug("Derived context updated",
		zap.String("session_id", sess.ID()),
		zap.Int("turns", len(recent)))
	return nil
}

// Transcript renders turns as role-labelled lines in chronological order.
func Transcript(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		speaker := "User"
		if t.Role == models.RoleAssistant {
			speaker = "PACE"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Content)
	}
	return b.String()
}
