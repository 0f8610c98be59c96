package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Generation GenerationConfig `mapstructure:"generation"`
	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the turn journal backend: memory, postgres or sqlite.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// GuardConfig configures the topicality classifier. Provider is one of
// huggingface, openai or keyword. An empty Model picks the provider's default.
type GuardConfig struct {
	Provider  string        `mapstructure:"provider"`
	Threshold float64       `mapstructure:"threshold"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	APIToken  string        `mapstructure:"api_token"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// GenerationConfig configures the reply and distillation backend. Provider is
// openai (any OpenAI-compatible endpoint, Groq by default) or ollama.
type GenerationConfig struct {
	Provider           string        `mapstructure:"provider"`
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	DistillModel       string        `mapstructure:"distill_model"`
	Temperature        float32       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	TopP               float32       `mapstructure:"top_p"`
	DistillTemperature float32       `mapstructure:"distill_temperature"`
	DistillMaxTokens   int           `mapstructure:"distill_max_tokens"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
}

type SessionConfig struct {
	MaxTurns      int           `mapstructure:"max_turns"`
	Window        int           `mapstructure:"window"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig throttles outbound generation calls. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "data/journal.db")

	v.SetDefault("guard.provider", "huggingface")
	v.SetDefault("guard.threshold", 0.60)
	v.SetDefault("guard.max_tokens", 200)
	v.SetDefault("guard.timeout", 20*time.Second)

	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("generation.model", "llama-3.1-8b-instant")
	v.SetDefault("generation.temperature", 0.25)
	v.SetDefault("generation.max_tokens", 180)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.distill_temperature", 0.1)
	v.SetDefault("generation.distill_max_tokens", 150)
	v.SetDefault("generation.call_timeout", 20*time.Second)

	v.SetDefault("session.max_turns", 20)
	v.SetDefault("session.window", 6)
	v.SetDefault("session.ttl", 2*time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)

	v.SetDefault("rate_limit.requests_per_minute", 0)
	v.SetDefault("rate_limit.burst", 1)
}

// LoadConfig reads path (a missing file leaves the defaults in place) and
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("GROQ_API_KEY"); apiKey != "" {
		config.Generation.APIKey = apiKey
	} else if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.Generation.APIKey = apiKey
	}

	if token := v.GetString("HF_API_TOKEN"); token != "" {
		config.Guard.APIToken = token
	}

	if raw := v.GetString("GUARD_THRESHOLD"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GUARD_THRESHOLD: %w", err)
		}
		config.Guard.Threshold = threshold
	}

	return &config, nil
}

// Validate reports the first setting the application cannot start with.
func (c *Config) Validate() error {
	if c.Guard.Threshold < 0 || c.Guard.Threshold > 1 {
		return fmt.Errorf("guard.threshold must be within [0,1], got %v", c.Guard.Threshold)
	}
	switch c.Guard.Provider {
	case "huggingface", "openai", "keyword":
	default:
		return fmt.Errorf("unknown guard.provider %q", c.Guard.Provider)
	}
	if c.Guard.Provider == "openai" && c.Generation.APIKey == "" {
		return errors.New("guard.provider openai needs a generation API key")
	}

	switch c.Generation.Provider {
	case "openai":
		if c.Generation.APIKey == "" {
			return errors.New("generation.api_key (or GROQ_API_KEY) is required for provider openai")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown generation.provider %q", c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return errors.New("generation.model is required")
	}
	if c.Generation.CallTimeout <= 0 {
		return errors.New("generation.call_timeout must be positive")
	}

	if c.Session.MaxTurns <= 0 || c.Session.Window <= 0 {
		return errors.New("session.max_turns and session.window must be positive")
	}

	switch c.Database.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}
