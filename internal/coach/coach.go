// Package coach runs a single coaching turn: guard check, context fetch,
// generation, post-check and session update.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/pace-bot/internal/classifier"
	"github.com/xaenox/pace-bot/internal/llm"
	"github.com/xaenox/pace-bot/internal/metrics"
	"github.com/xaenox/pace-bot/internal/models"
	"github.com/xaenox/pace-bot/internal/session"
	"github.com/xaenox/pace-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultTemperature = 0.25
	DefaultMaxTokens   = 180
	DefaultCallTimeout = 20 * time.Second

	// DefaultSessionID is used when a transport submits a turn without one.
	DefaultSessionID = "default"
)

// Guard scores a message against the closed category set.
type Guard interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Threshold   float64
	CallTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Threshold:   classifier.DefaultThreshold,
		CallTimeout: DefaultCallTimeout,
	}
}

type Coach struct {
	guard     Guard
	generator llm.Generator
	sessions  *session.Store
	distiller *session.Distiller
	journal   storage.Storage
	metrics   *metrics.Metrics
	opts      Options
	logger    *zap.Logger
}

// New wires the turn pipeline. journal and m may be nil.
func New(
	opts Options,
	guard Guard,
	generator llm.Generator,
	sessions *session.Store,
	distiller *session.Distiller,
	journal storage.Storage,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Coach {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Coach{
		guard:     guard,
		generator: generator,
		sessions:  sessions,
		distiller: distiller,
		journal:   journal,
		metrics:   m,
		opts:      opts,
		logger:    logger,
	}
}

func (c *Coach) Sessions() *session.Store {
	return c.sessions
}

func (c *Coach) Journal() storage.Storage {
	return c.journal
}

// HandleTurn never fails: every path, including upstream outages, ends in a
// response the transport can show.
func (c *Coach) HandleTurn(ctx context.Context, req models.ChatRequest) models.ChatResponse {
	start := time.Now()
	if req.SessionID == "" {
		req.SessionID = DefaultSessionID
	}

	resp, outcome := c.handle(ctx, req)
	resp.SessionID = req.SessionID

	c.finish(ctx, resp, outcome, time.Since(start))
	return resp
}

func (c *Coach) handle(ctx context.Context, req models.ChatRequest) (models.ChatResponse, models.Outcome) {
	situation := strings.TrimSpace(req.Situation)
	if situation == "" {
		return models.ChatResponse{
			Response:        GuidanceText,
			GuardLabel:      string(classifier.InDomainCoaching),
			GuardConfidence: 1.0,
		}, models.OutcomeGuidance
	}

	decision, err := c.check(ctx, situation)
	if err != nil {
		c.logger.Error("Guard unavailable, refusing turn",
			zap.Error(err),
			zap.String("session_id", req.SessionID))
		c.metrics.ObserveUpstreamFailure("classify")
		return refusal(LabelGuardUnavailable, 1.0), models.OutcomeGuardUnavailable
	}

	c.logger.Info("Guard decision",
		zap.String("session_id", req.SessionID),
		zap.Bool("refused", decision.Refused),
		zap.String("label", string(decision.Category)),
		zap.Float64("confidence", decision.Confidence))

	if decision.Refused {
		return refusal(string(decision.Category), decision.Confidence), models.OutcomeRefused
	}

	sess, release := c.sessions.Acquire(req.SessionID)
	defer release()

	output, generated := c.generate(ctx, sess, situation)

	if term, hit := PostCheck(output); hit {
		c.logger.Warn("Generated text blocked by post-check",
			zap.String("session_id", sess.ID()),
			zap.String("term", term))
		return refusal(LabelPostCheckBlock, 1.0), models.OutcomeBlocked
	}

	c.sessions.Append(sess, models.RoleUser, situation)
	c.sessions.Append(sess, models.RoleAssistant, output)
	c.distill(ctx, sess)

	outcome := models.OutcomeAnswered
	if !generated {
		outcome = models.OutcomeFallback
	}
	return models.ChatResponse{
		Response:        output,
		GuardLabel:      string(decision.Category),
		GuardConfidence: decision.Confidence,
	}, outcome
}

func (c *Coach) check(ctx context.Context, text string) (classifier.Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	result, err := c.guard.Classify(callCtx, text)
	if err != nil {
		return classifier.Decision{}, err
	}
	return classifier.Decide(result, c.opts.Threshold), nil
}

// generate returns the trimmed model output, or the fallback apology and
// false when the backend fails.
func (c *Coach) generate(ctx context.Context, sess *session.Session, situation string) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	out, err := c.generator.Generate(callCtx, llm.Request{
		Model: c.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(userPayloadTemplate, sess.DerivedContext(), situation)},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err == nil {
		out = strings.TrimSpace(out)
		if out != "" {
			return out, true
		}
		err = errors.New("empty completion")
	}

	c.logger.Error("Generation failed, using fallback",
		zap.Error(err),
		zap.String("session_id", sess.ID()))
	c.metrics.ObserveUpstreamFailure("generate")
	return FallbackText, false
}

func (c *Coach) distill(ctx context.Context, sess *session.Session) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	if err := c.distiller.Distill(callCtx, sess); err != nil {
		c.metrics.ObserveUpstreamFailure("distill")
	}
}

func (c *Coach) finish(ctx context.Context, resp models.ChatResponse, outcome models.Outcome, took time.Duration) {
	c.metrics.ObserveTurn(string(outcome), took)
	if resp.Refused {
		c.metrics.ObserveRefusal(resp.GuardLabel)
	}

	if c.journal == nil {
		return
	}

	// The journal write outlives a cancelled request.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
	defer cancel()

	rec := &models.TurnRecord{
		SessionID:       resp.SessionID,
		Outcome:         outcome,
		GuardLabel:      resp.GuardLabel,
		GuardConfidence: resp.GuardConfidence,
		Refused:         resp.Refused,
		Latency:         took,
	}
	if err := c.journal.SaveTurn(saveCtx, rec); err != nil {
		c.logger.Error("Failed to save turn record",
			zap.Error(err),
			zap.String("session_id", resp.SessionID),
			zap.String("outcome", string(outcome)))
		c.metrics.ObserveUpstreamFailure("journal")
	}
}

func refusal(label string, confidence float64) models.ChatResponse {
	return models.ChatResponse{
		Response:        RefusalText,
		Refused:         true,
		GuardLabel:      label,
		GuardConfidence: confidence,
	}
}
