// Package config loads runtime settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/nathoo/talecore/logging"
)

// Provider names.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Save backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LLM selects and configures the completion provider.
type LLM struct {
	Provider      string        `env:"TALECORE_PROVIDER"     envDefault:"mock"`
	Model         string        `env:"TALECORE_MODEL"`
	OpenAIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"       envDefault:"https://api.openai.com/v1"`
	GeminiKey     string        `env:"GEMINI_API_KEY"`
	OllamaBaseURL string        `env:"OLLAMA_BASE_URL"       envDefault:"http://localhost:11434"`
	Timeout       time.Duration `env:"TALECORE_LLM_TIMEOUT"  envDefault:"60s"`
	MaxRetries    int           `env:"TALECORE_MAX_RETRIES"  envDefault:"2"`
	Lenient       bool          `env:"TALECORE_LENIENT"`
}

// Save selects the save backend.
type Save struct {
	Backend     string `env:"TALECORE_SAVE_BACKEND" envDefault:"file"`
	Dir         string `env:"TALECORE_SAVE_DIR"     envDefault:"saves"`
	DatabaseURL string `env:"TALECORE_DATABASE_URL" envDefault:"sqlite://saves.db"`
	RedisAddr   string `env:"TALECORE_REDIS_ADDR"   envDefault:"localhost:6379"`
}

// Prompt tunes prompt size.
type Prompt struct {
	Compact       bool `env:"TALECORE_COMPACT_PROMPT"`
	WorldMaxChars int  `env:"TALECORE_WORLD_MAX_CHARS"`
}

// Config is the full runtime configuration.
type Config struct {
	LLM         LLM
	Save        Save
	Prompt      Prompt
	LogDir      string `env:"TALECORE_LOG_DIR"      envDefault:"logs"`
	LogLevel    string `env:"TALECORE_LOG_LEVEL"    envDefault:"info"`
	MetricsAddr string `env:"TALECORE_METRICS_ADDR"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderMock, ProviderOllama:
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
		}
	case ProviderGemini:
		if c.LLM.GeminiKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must be >= 0, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm timeout must be positive, got %s", c.LLM.Timeout))
	}

	switch c.Save.Backend {
	case BackendFile, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown save backend %q", c.Save.Backend))
	}

	if c.Prompt.WorldMaxChars < 0 {
		errs = append(errs, fmt.Errorf("world max chars must be >= 0, got %d", c.Prompt.WorldMaxChars))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	l, _ := logging.ParseLevel(c.LogLevel)
	return l
}
