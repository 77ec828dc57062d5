package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/percept/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout())
	assert.Equal(t, "hybrid", cfg.Orchestrator.DefaultStrategy)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "percept.yaml")
	content := []byte(`
version: "2.0.0"
breaker:
  threshold: 3
  reset_timeout: 10s
orchestrator:
  default_strategy: performance_first
  max_latency: 100ms
nats:
  enabled: true
  url: nats://broker:4222
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", cfg.Version)
	assert.Equal(t, 3, cfg.Breaker.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.ResetTimeout())
	assert.Equal(t, "performance_first", cfg.Orchestrator.DefaultStrategy)
	assert.Equal(t, 100*time.Millisecond, cfg.Orchestrator.MaxLatency())
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "percept.json")
	content := []byte(`{"breaker": {"threshold": 2, "reset_timeout": "5s"}}`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Breaker.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Breaker.ResetTimeout())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/percept.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "percept.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  threshold: 0\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERCEPT_NATS_URL", "nats://override:4222")
	t.Setenv("PERCEPT_NATS_ENABLED", "true")
	t.Setenv("PERCEPT_METRICS_PORT", "9999")
	t.Setenv("PERCEPT_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, 9999, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateConstraints(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }},
		{"malformed reset timeout", func(c *Config) { c.Breaker.ResetTimeoutStr = "soon" }},
		{"negative reset timeout", func(c *Config) { c.Breaker.ResetTimeoutStr = "-1s" }},
		{"negative max latency", func(c *Config) { c.Orchestrator.MaxLatencyStr = "-100ms" }},
		{"malformed step timeout", func(c *Config) { c.Composition.StepTimeoutStr = "fast" }},
		{"zero hybrid weights", func(c *Config) {
			c.Orchestrator.HybridPerformanceWeight = 0
			c.Orchestrator.HybridAccuracyWeight = 0
		}},
		{"empty strategy", func(c *Config) { c.Orchestrator.DefaultStrategy = "" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"metrics path without slash", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"bad nats scheme", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = "http://broker:4222"
		}},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("visible", "pipeline", "face-a")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, `"pipeline":"face-a"`)

	// Defaults: info level, text format, stderr writer.
	logger = LoggingConfig{}.NewLogger(&buf)
	assert.True(t, logger.Enabled(nil, slog.LevelInfo))
}
