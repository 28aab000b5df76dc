package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// StateBackend selects where persisted client state lives.
type StateBackend string

const (
	BackendMemory   StateBackend = "memory"
	BackendFile     StateBackend = "file"
	BackendRedis    StateBackend = "redis"
	BackendPostgres StateBackend = "postgres"
)

type Config struct {
	BaseURL               string       `env:"ASKDOCS_BASE_URL" envDefault:"http://127.0.0.1:8000"`
	RequestTimeoutSeconds int          `env:"ASKDOCS_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	UploadTimeoutSeconds  int          `env:"ASKDOCS_UPLOAD_TIMEOUT_SECONDS" envDefault:"120"`
	StateBackend          StateBackend `env:"ASKDOCS_STATE_BACKEND" envDefault:"file"`
	StateDir              string       `env:"ASKDOCS_STATE_DIR" envDefault:""`
	RedisURL              string       `env:"REDIS_URL"`
	DatabaseURL           string       `env:"DATABASE_URL"`
	LogLevel              string       `env:"LOG_LEVEL" envDefault:"info"`
	Port                  int          `env:"PORT" envDefault:"8000"`
	UploadMaxBatch        int          `env:"ASKDOCS_UPLOAD_MAX_BATCH" envDefault:"10"`
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when ASKDOCS_STATE_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ASKDOCS_STATE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown state backend %q (expected memory, file, redis or postgres)", c.StateBackend)
	}

	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("ASKDOCS_REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.UploadMaxBatch <= 0 {
		return fmt.Errorf("ASKDOCS_UPLOAD_MAX_BATCH must be positive")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
