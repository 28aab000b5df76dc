package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 8000}
		assert.Equal(t, ":8000", cfg.Addr())
	})

	t.Run("RequestTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{RequestTimeoutSeconds: 30}
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	})

	t.Run("UploadTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{UploadTimeoutSeconds: 120}
		assert.Equal(t, 120*time.Second, cfg.UploadTimeout())
	})
}

func TestValidate(t *testing.T) {
	base := Config{
		BaseURL:               "http://127.0.0.1:8000",
		RequestTimeoutSeconds: 30,
		UploadTimeoutSeconds:  120,
		UploadMaxBatch:        10,
	}

	t.Run("memory backend needs nothing extra", func(t *testing.T) {
		cfg := base
		cfg.StateBackend = BackendMemory
		assert.NoError(t, cfg.Validate())
	})

	t.Run("redis backend requires REDIS_URL", func(t *testing.T) {
		cfg := base
		cfg.StateBackend = BackendRedis
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URL")

		cfg.RedisURL = "redis://localhost:6379"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres backend requires DATABASE_URL", func(t *testing.T) {
		cfg := base
		cfg.StateBackend = BackendPostgres
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")

		cfg.DatabaseURL = "postgres://localhost/askdocs"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := base
		cfg.StateBackend = "etcd"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive limits rejected", func(t *testing.T) {
		cfg := base
		cfg.StateBackend = BackendMemory
		cfg.RequestTimeoutSeconds = 0
		assert.Error(t, cfg.Validate())

		cfg = base
		cfg.StateBackend = BackendMemory
		cfg.UploadMaxBatch = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"ASKDOCS_BASE_URL":                os.Getenv("ASKDOCS_BASE_URL"),
		"ASKDOCS_REQUEST_TIMEOUT_SECONDS": os.Getenv("ASKDOCS_REQUEST_TIMEOUT_SECONDS"),
		"ASKDOCS_STATE_BACKEND":           os.Getenv("ASKDOCS_STATE_BACKEND"),
		"ASKDOCS_UPLOAD_MAX_BATCH":        os.Getenv("ASKDOCS_UPLOAD_MAX_BATCH"),
		"LOG_LEVEL":                       os.Getenv("LOG_LEVEL"),
		"PORT":                            os.Getenv("PORT"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		for k := range originalEnv {
			os.Unsetenv(k)
		}

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:8000", cfg.BaseURL)
		assert.Equal(t, 30, cfg.RequestTimeoutSeconds)
		assert.Equal(t, BackendFile, cfg.StateBackend)
		assert.Equal(t, 10, cfg.UploadMaxBatch)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 8000, cfg.Port)
	})

	t.Run("reads overrides from environment", func(t *testing.T) {
		os.Setenv("ASKDOCS_BASE_URL", "https://api.example.com")
		os.Setenv("ASKDOCS_STATE_BACKEND", "memory")
		os.Setenv("ASKDOCS_UPLOAD_MAX_BATCH", "5")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", cfg.BaseURL)
		assert.Equal(t, BackendMemory, cfg.StateBackend)
		assert.Equal(t, 5, cfg.UploadMaxBatch)
	})
}
