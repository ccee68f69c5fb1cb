// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type AgentConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Agent           string        `yaml:"agent"` // remote agent name
	Model           string        `yaml:"model"`
	MaxIterations   int           `yaml:"max_iterations"`
	CallTimeout     time.Duration `yaml:"call_timeout"`     // single HTTP call
	PollInterval    time.Duration `yaml:"poll_interval"`    // status/messages cadence
	SessionTimeout  time.Duration `yaml:"session_timeout"`  // per-job wall clock
	MaxRetries      int           `yaml:"max_retries"`      // full session attempts beyond the first
	CallRetryLimit  int           `yaml:"call_retry_limit"` // consecutive retries of one poll call
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max in-flight HTTP calls
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
}

type ReviewConfig struct {
	MaxCriticalItems  int    `yaml:"max_critical_items"`
	PromptTokenBudget int    `yaml:"prompt_token_budget"` // 0 disables the check
	OutputDir         string `yaml:"output_dir"`
	Concurrency       int    `yaml:"concurrency"` // concurrent review jobs
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables the Postgres sink
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables session checkpoints
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StatusConfig struct {
	Port      int    `yaml:"port"` // 0 disables the status server
	AuthToken string `yaml:"auth_token"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"` // empty disables notification
	ChatID        int64  `yaml:"chat_id"`
}

type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Review   ReviewConfig   `yaml:"review"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Status   StatusConfig   `yaml:"status"`
	Notify   NotifyConfig   `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Agent.BaseURL == "" {
		return nil, errors.New("agent.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields; exported so tests and the demo
// wiring can start from an empty Config.
func (cfg *Config) ApplyDefaults() {
	if cfg.Agent.Agent == "" {
		cfg.Agent.Agent = "CodeActAgent"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "anthropic/claude-3-5-sonnet-20241022"
	}
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 100
	}
	if cfg.Agent.CallTimeout <= 0 {
		cfg.Agent.CallTimeout = 30 * time.Second
	}
	if cfg.Agent.PollInterval <= 0 {
		cfg.Agent.PollInterval = 5 * time.Second
	}
	if cfg.Agent.SessionTimeout <= 0 {
		cfg.Agent.SessionTimeout = time.Hour
	}
	if cfg.Agent.MaxRetries < 0 {
		cfg.Agent.MaxRetries = 0
	}
	if cfg.Agent.CallRetryLimit <= 0 {
		cfg.Agent.CallRetryLimit = 3
	}
	if cfg.Agent.ConcurrentLimit <= 0 {
		cfg.Agent.ConcurrentLimit = 16
	}
	if cfg.Agent.BackoffBase <= 0 {
		cfg.Agent.BackoffBase = time.Second
	}
	if cfg.Agent.BackoffMax <= 0 {
		cfg.Agent.BackoffMax = time.Minute
	}
	if cfg.Review.MaxCriticalItems <= 0 {
		cfg.Review.MaxCriticalItems = 10
	}
	if cfg.Review.OutputDir == "" {
		cfg.Review.OutputDir = "./review_output"
	}
	if cfg.Review.Concurrency <= 0 {
		cfg.Review.Concurrency = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
}
