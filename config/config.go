package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/percept/errors"
)

// Config is the complete percept configuration
type Config struct {
	Version      string             `json:"version" yaml:"version"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Breaker      BreakerConfig      `json:"breaker" yaml:"breaker"`
	Composition  CompositionConfig  `json:"composition" yaml:"composition"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	NATS         NATSConfig         `json:"nats" yaml:"nats"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
}

// OrchestratorConfig tunes pipeline selection and invocation
type OrchestratorConfig struct {
	// DefaultStrategy is used when a request names no strategy
	DefaultStrategy string `json:"default_strategy" yaml:"default_strategy"`
	// MaxLatencyStr is the default per-call budget when a request sets
	// none, e.g. "100ms"; empty disables the default budget
	MaxLatencyStr string `json:"max_latency,omitempty" yaml:"max_latency,omitempty"`
	// HybridPerformanceWeight and HybridAccuracyWeight blend the hybrid
	// strategy's two component scores
	HybridPerformanceWeight float64 `json:"hybrid_performance_weight" yaml:"hybrid_performance_weight"`
	HybridAccuracyWeight    float64 `json:"hybrid_accuracy_weight" yaml:"hybrid_accuracy_weight"`

	// maxLatency is the parsed budget (internal use)
	maxLatency time.Duration
}

// MaxLatency returns the parsed per-call budget. Valid after Validate.
func (c *OrchestratorConfig) MaxLatency() time.Duration { return c.maxLatency }

// BreakerConfig tunes per-pipeline circuit breakers
type BreakerConfig struct {
	Threshold int `json:"threshold" yaml:"threshold"`
	// ResetTimeoutStr is how long an open breaker waits before admitting
	// a trial, e.g. "30s"
	ResetTimeoutStr string `json:"reset_timeout,omitempty" yaml:"reset_timeout,omitempty"`

	// resetTimeout is the parsed duration (internal use)
	resetTimeout time.Duration
}

// ResetTimeout returns the parsed reset timeout. Valid after Validate.
func (c *BreakerConfig) ResetTimeout() time.Duration { return c.resetTimeout }

// CompositionConfig tunes composition execution defaults
type CompositionConfig struct {
	// MaxConcurrency bounds parallel steps when a composition sets none
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
	// StepTimeoutStr is the default per-step budget, e.g. "500ms";
	// empty disables it
	StepTimeoutStr string `json:"step_timeout,omitempty" yaml:"step_timeout,omitempty"`

	// stepTimeout is the parsed budget (internal use)
	stepTimeout time.Duration
}

// StepTimeout returns the parsed per-step budget. Valid after Validate.
func (c *CompositionConfig) StepTimeout() time.Duration { return c.stepTimeout }

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// NATSConfig controls result distribution
type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Name    string `json:"name" yaml:"name"`
}

// LoggingConfig controls slog setup
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Orchestrator: OrchestratorConfig{
			DefaultStrategy:         "hybrid",
			HybridPerformanceWeight: 0.5,
			HybridAccuracyWeight:    0.5,
		},
		Breaker: BreakerConfig{
			Threshold:       5,
			ResetTimeoutStr: "30s",
		},
		Composition: CompositionConfig{
			MaxConcurrency: 4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "percept",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a YAML or JSON config file, layered over defaults and
// under environment overrides. YAML parsing covers both formats.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "LoadFile", "file read")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "LoadFile", "config parse")
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load returns defaults with environment overrides applied.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies PERCEPT_* environment variables over the
// loaded values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PERCEPT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PERCEPT_NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PERCEPT_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("PERCEPT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PERCEPT_DEFAULT_STRATEGY"); v != "" {
		cfg.Orchestrator.DefaultStrategy = v
	}
}

// Validate checks cross-field constraints. Called by the loaders; call it
// directly when building a Config in code.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
			"Config", "Validate", "constraint check")
	}

	if c.Breaker.Threshold < 1 {
		return fail("breaker.threshold must be at least 1")
	}
	if c.Breaker.ResetTimeoutStr == "" {
		c.Breaker.resetTimeout = 30 * time.Second
	} else {
		d, err := time.ParseDuration(c.Breaker.ResetTimeoutStr)
		if err != nil {
			return fail(fmt.Sprintf("invalid breaker.reset_timeout: %s", c.Breaker.ResetTimeoutStr))
		}
		if d <= 0 {
			return fail("breaker.reset_timeout must be positive")
		}
		c.Breaker.resetTimeout = d
	}
	if c.Orchestrator.MaxLatencyStr != "" {
		d, err := time.ParseDuration(c.Orchestrator.MaxLatencyStr)
		if err != nil || d < 0 {
			return fail(fmt.Sprintf("invalid orchestrator.max_latency: %s", c.Orchestrator.MaxLatencyStr))
		}
		c.Orchestrator.maxLatency = d
	}
	if c.Orchestrator.HybridPerformanceWeight < 0 || c.Orchestrator.HybridAccuracyWeight < 0 {
		return fail("hybrid weights must not be negative")
	}
	if c.Orchestrator.HybridPerformanceWeight+c.Orchestrator.HybridAccuracyWeight == 0 {
		return fail("hybrid weights must not both be zero")
	}
	if c.Orchestrator.DefaultStrategy == "" {
		return fail("orchestrator.default_strategy must be set")
	}
	if c.Composition.MaxConcurrency < 0 {
		return fail("composition.max_concurrency must not be negative")
	}
	if c.Composition.StepTimeoutStr != "" {
		d, err := time.ParseDuration(c.Composition.StepTimeoutStr)
		if err != nil || d < 0 {
			return fail(fmt.Sprintf("invalid composition.step_timeout: %s", c.Composition.StepTimeoutStr))
		}
		c.Composition.stepTimeout = d
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fail("metrics.port must be a valid port")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fail("metrics.path must start with /")
		}
	}
	if c.NATS.Enabled && !strings.HasPrefix(c.NATS.URL, "nats://") &&
		!strings.HasPrefix(c.NATS.URL, "tls://") {
		return fail("nats.url must use the nats:// or tls:// scheme")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fail("logging.level must be debug, info, warn, or error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fail("logging.format must be text or json")
	}
	return nil
}
