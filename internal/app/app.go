// Package app builds the coaching pipeline from configuration. Both the HTTP
// server and the Telegram bot start from here.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xaenox/pace-bot/internal/classifier"
	"github.com/xaenox/pace-bot/internal/coach"
	"github.com/xaenox/pace-bot/internal/llm"
	"github.com/xaenox/pace-bot/internal/metrics"
	"github.com/xaenox/pace-bot/internal/session"
	"github.com/xaenox/pace-bot/internal/storage"
	"github.com/xaenox/pace-bot/pkg/config"
	"go.uber.org/zap"
)

// keyword oracle scores for a matched and an unmatched category
const (
	keywordHitScore  = 0.9
	keywordBaseScore = 0.05
)

type App struct {
	Coach    *coach.Coach
	Sessions *session.Store
	Journal  storage.Storage
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	logger *zap.Logger
}

// New wires every component and starts the session janitor, which stops when
// ctx is done.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	journal, err := NewJournal(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	oracle, err := NewOracle(cfg, logger)
	if err != nil {
		journal.Close()
		return nil, err
	}

	generator, err := NewGenerator(cfg.Generation, logger)
	if err != nil {
		journal.Close()
		return nil, err
	}
	generator = llm.NewRateLimited(generator, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	sessions := session.NewStore(cfg.Session.MaxTurns, cfg.Session.TTL, logger)
	sessions.StartJanitor(ctx, cfg.Session.SweepInterval)

	distillModel := cfg.Generation.DistillModel
	if distillModel == "" {
		distillModel = cfg.Generation.Model
	}
	distiller := session.NewDistiller(generator, distillModel, cfg.Session.Window,
		cfg.Generation.DistillTemperature, cfg.Generation.DistillMaxTokens, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry, sessions.Len)

	c := coach.New(coach.Options{
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Threshold:   cfg.Guard.Threshold,
		CallTimeout: cfg.Generation.CallTimeout,
	}, classifier.NewClassifier(oracle, logger), generator, sessions, distiller, journal, m, logger)

	logger.Info("Coach ready",
		zap.String("guard_provider", cfg.Guard.Provider),
		zap.Float64("guard_threshold", cfg.Guard.Threshold),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("journal", cfg.Database.Driver))

	return &App{
		Coach:    c,
		Sessions: sessions,
		Journal:  journal,
		Metrics:  m,
		Registry: registry,
		logger:   logger,
	}, nil
}

func (a *App) Close() error {
	return a.Journal.Close()
}

// NewJournal opens the configured turn journal.
func NewJournal(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using in-memory journal")
		return storage.NewMemoryStorage(), nil
	case "postgres":
		logger.Info("Using PostgreSQL journal")
		s, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres journal: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite journal: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

// NewOracle builds the guard oracle for cfg.Guard.Provider.
func NewOracle(cfg *config.Config, logger *zap.Logger) (classifier.Oracle, error) {
	switch cfg.Guard.Provider {
	case "huggingface":
		model := cfg.Guard.Model
		if model == "" {
			model = classifier.DefaultHuggingFaceModel
		}
		return classifier.NewHuggingFaceOracle(cfg.Guard.BaseURL, cfg.Guard.APIToken, model, cfg.Guard.Timeout, logger), nil
	case "openai":
		model := cfg.Guard.Model
		if model == "" {
			model = cfg.Generation.Model
		}
		baseURL := cfg.Guard.BaseURL
		if baseURL == "" {
			baseURL = cfg.Generation.BaseURL
		}
		return classifier.NewGPTOracle(cfg.Generation.APIKey, baseURL, model, cfg.Guard.MaxTokens, logger), nil
	case "keyword":
		logger.Warn("Using offline keyword guard")
		return classifier.NewKeywordOracle(keywordHitScore, keywordBaseScore), nil
	default:
		return nil, fmt.Errorf("unknown guard provider %q", cfg.Guard.Provider)
	}
}

// NewGenerator builds the generation backend for cfg.Provider.
func NewGenerator(cfg config.GenerationConfig, logger *zap.Logger) (llm.Generator, error) {
	switch cfg.Provider {
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = llm.DefaultGroqBaseURL
		}
		return llm.NewOpenAIGenerator(cfg.APIKey, baseURL, cfg.TopP, logger), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" || baseURL == llm.DefaultGroqBaseURL {
			baseURL = llm.DefaultOllamaURL
		}
		return llm.NewOllamaGenerator(baseURL, cfg.CallTimeout, cfg.TopP, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
