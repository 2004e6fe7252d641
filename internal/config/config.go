package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config is the server process configuration. Postgres, Redis, RabbitMQ
// and the webhook endpoint are optional collaborators: an empty value
// disables that integration.
type Config struct {
	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	APIKey   string `env:"API_KEY,required=true"`

	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	WebhookURL  string `env:"WEBHOOK_URL"`

	// Postgres connection pool tuning. History reads are bursty during
	// list queries, so the pool is sized for short-lived connections.
	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS,default=20"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS,default=4"`
	DBConnMaxLifetimeM int `env:"DB_CONN_MAX_LIFETIME_MINUTES,default=30"`

	// Retention for persisted generation history. Zero disables the sweep.
	HistoryRetentionDays int `env:"HISTORY_RETENTION_DAYS,default=0"`

	// Client-side sliding window limiter.
	RateLimitMaxRequests int `env:"RATE_LIMIT_MAX_REQUESTS,default=10"`
	RateLimitWindowMs    int `env:"RATE_LIMIT_WINDOW_MS,default=60000"`
	RateLimitCooldownMs  int `env:"RATE_LIMIT_COOLDOWN_MS,default=30000"`

	// Redis-backed per-second admission limit for the HTTP surface.
	HTTPRateLimitPerSec int `env:"HTTP_RATE_LIMIT_PER_SEC,default=100"`

	// Mock pipeline tuning. Error rates are percentages (0-100).
	AnalysisDelayMs        int `env:"ANALYSIS_DELAY_MS,default=2000"`
	GenerationDelayMs      int `env:"GENERATION_DELAY_MS,default=3000"`
	AnalysisErrorRatePct   int `env:"ANALYSIS_ERROR_RATE_PCT,default=0"`
	GenerationErrorRatePct int `env:"GENERATION_ERROR_RATE_PCT,default=0"`

	// Real pipeline backend; empty keeps the mock.
	PipelineBaseURL   string `env:"PIPELINE_BASE_URL"`
	PipelineTimeoutMs int    `env:"PIPELINE_TIMEOUT_MS,default=30000"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be a valid port, got %d", c.APIPort)
	}
	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be >= 1, got %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindowMs < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be >= 1, got %d", c.RateLimitWindowMs)
	}
	if c.RateLimitCooldownMs < 0 {
		return fmt.Errorf("RATE_LIMIT_COOLDOWN_MS must be >= 0, got %d", c.RateLimitCooldownMs)
	}
	if c.AnalysisErrorRatePct < 0 || c.AnalysisErrorRatePct > 100 {
		return fmt.Errorf("ANALYSIS_ERROR_RATE_PCT must be 0-100, got %d", c.AnalysisErrorRatePct)
	}
	if c.GenerationErrorRatePct < 0 || c.GenerationErrorRatePct > 100 {
		return fmt.Errorf("GENERATION_ERROR_RATE_PCT must be 0-100, got %d", c.GenerationErrorRatePct)
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 1, got %d", c.DBMaxOpenConns)
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS, got %d", c.DBMaxIdleConns)
	}
	if c.HistoryRetentionDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be >= 0, got %d", c.HistoryRetentionDays)
	}
	return nil
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func (c *Config) RateLimitCooldown() time.Duration {
	return time.Duration(c.RateLimitCooldownMs) * time.Millisecond
}

func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.AnalysisDelayMs) * time.Millisecond
}

func (c *Config) GenerationDelay() time.Duration {
	return time.Duration(c.GenerationDelayMs) * time.Millisecond
}

func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutMs) * time.Millisecond
}

func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeM) * time.Minute
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}
