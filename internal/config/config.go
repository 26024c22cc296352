package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gostudio/domain/ranking"
	"gostudio/internal"
	"gostudio/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Store    StoreConfig
	AI       AIConfig
	Server   ServerConfig
	Session  SessionConfig
	Analysis AnalysisConfig
	LogLevel internal.LogLevel
}

// StoreConfig selects the snapshot store: postgres when DatabaseURL is set,
// the embedded sqlite file otherwise
type StoreConfig struct {
	DatabaseURL string
	SQLitePath  string
}

// UsePostgres reports whether snapshots go to postgres
func (s StoreConfig) UsePostgres() bool { return s.DatabaseURL != "" }

// AIConfig holds reasoning collaborator settings. Without an API key the service
// runs on templates only.
type AIConfig struct {
	OpenAIKey   string
	OpenAIModel string
	BaseURL     string
	MaxTokens   int
	MaxRetries  int
	Temperature float64
	Timeout     time.Duration
}

// Enabled reports whether an LLM collaborator is configured
func (a AIConfig) Enabled() bool { return a.OpenAIKey != "" }

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// SessionConfig controls in-memory session lifetime
type SessionConfig struct {
	TTL           time.Duration // idle sessions expire after TTL
	SweepInterval time.Duration
}

// AnalysisConfig tunes the statistical engine and ranking
type AnalysisConfig struct {
	TestTimeout time.Duration
	Parallelism int
	MinSamples  int
	Weights     ranking.Weights
}

// Load reads configuration from environment variables and validates it.
// Binaries call godotenv.Load() first so a .env file can supply the values.
func Load() (*Config, error) {
	env := &envReader{}
	defaults := ranking.DefaultWeights()

	config := &Config{
		Store: StoreConfig{
			DatabaseURL: env.str("DATABASE_URL", ""),
			SQLitePath:  env.str("SQLITE_PATH", "gostudio.db"),
		},
		AI: AIConfig{
			OpenAIKey:   env.str("OPENAI_API_KEY", ""),
			OpenAIModel: env.str("LLM_MODEL", "gpt-4.1-mini"),
			BaseURL:     env.str("OPENAI_BASE_URL", ""),
			MaxTokens:   env.integer("MAX_TOKENS", 1200),
			MaxRetries:  env.integer("LLM_MAX_RETRIES", 2),
			Temperature: env.number("TEMPERATURE", 0.2),
			Timeout:     env.duration("LLM_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Port:    env.str("PORT", "8080"),
			GinMode: env.str("GIN_MODE", "release"),
		},
		Session: SessionConfig{
			TTL:           env.duration("SESSION_TTL", 2*time.Hour),
			SweepInterval: env.duration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		Analysis: AnalysisConfig{
			TestTimeout: env.duration("TEST_TIMEOUT", 10*time.Second),
			Parallelism: env.integer("TEST_PARALLELISM", 4),
			MinSamples:  env.integer("MIN_SAMPLES", 8),
			Weights: ranking.Weights{
				Significance: env.number("RANK_WEIGHT_SIGNIFICANCE", defaults.Significance),
				Effect:       env.number("RANK_WEIGHT_EFFECT", defaults.Effect),
				Importance:   env.number("RANK_WEIGHT_IMPORTANCE", defaults.Importance),
			},
		},
	}

	level, ok := internal.ParseLogLevel(env.str("LOG_LEVEL", "INFO"))
	if !ok {
		env.fail("LOG_LEVEL", os.Getenv("LOG_LEVEL"))
	}
	config.LogLevel = level

	if len(env.errs) > 0 {
		return nil, errors.ConfigInvalid("malformed environment: " + strings.Join(env.errs, "; "))
	}
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if port, err := strconv.Atoi(config.Server.Port); err != nil || port <= 0 || port > 65535 {
		return errors.ConfigInvalid(fmt.Sprintf("PORT must be a TCP port, got %q", config.Server.Port))
	}
	if !config.Store.UsePostgres() && config.Store.SQLitePath == "" {
		return errors.ConfigInvalid("either DATABASE_URL or SQLITE_PATH is required")
	}
	if config.Session.TTL <= 0 || config.Session.SweepInterval <= 0 {
		return errors.ConfigInvalid("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	if config.Analysis.TestTimeout <= 0 {
		return errors.ConfigInvalid("TEST_TIMEOUT must be positive")
	}
	if config.Analysis.Parallelism < 1 {
		return errors.ConfigInvalid("TEST_PARALLELISM must be at least 1")
	}
	if config.Analysis.MinSamples < 3 {
		return errors.ConfigInvalid("MIN_SAMPLES must be at least 3")
	}
	if err := config.Analysis.Weights.Validate(); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if config.AI.Temperature < 0 || config.AI.Temperature > 2 {
		return errors.ConfigInvalid("TEMPERATURE must be within [0, 2]")
	}
	if config.AI.MaxRetries < 0 {
		return errors.ConfigInvalid("LLM_MAX_RETRIES must not be negative")
	}
	return nil
}

// envReader parses environment variables and collects malformed ones
type envReader struct {
	errs []string
}

func (e *envReader) fail(key, value string) {
	e.errs = append(e.errs, fmt.Sprintf("%s=%q", key, value))
}

func (e *envReader) str(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return intValue
}

func (e *envReader) number(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return floatValue
}

func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value)
		return defaultValue
	}
	return duration
}
