// Package main implements the entry point for the percept daemon, which
// hosts the pipeline orchestrator, the composition engine, and the NATS
// result publisher behind a Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/percept/breaker"
	"github.com/c360/percept/composition"
	"github.com/c360/percept/config"
	"github.com/c360/percept/distribute"
	"github.com/c360/percept/event"
	"github.com/c360/percept/metric"
	"github.com/c360/percept/orchestrator"
	"github.com/c360/percept/strategy"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "percept"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	logger := setupLogger(cfg, cliCfg)
	slog.SetDefault(logger)
	slog.Info("Starting percept (pipeline orchestration)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx := context.Background()
	return runWithSignalHandling(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// initializeCLI parses and validates flags
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// loadConfiguration layers the config file (when given) over defaults and
// environment overrides
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	if cliCfg.ConfigPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cliCfg.ConfigPath, err)
	}
	return cfg, nil
}

// setupLogger builds the process logger; CLI flags win over file config
func setupLogger(cfg *config.Config, cliCfg *CLIConfig) *slog.Logger {
	logCfg := cfg.Logging
	if cliCfg.LogLevel != "" {
		logCfg.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		logCfg.Format = cliCfg.LogFormat
	}
	return logCfg.NewLogger(os.Stdout).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

// application holds the wired subsystems for shutdown
type application struct {
	metricsServer *metric.Server
	publisher     *distribute.Publisher
	orchestrator  *orchestrator.Orchestrator
	engine        *composition.Engine
	bus           *event.Bus
	natsConn      distribute.Conn
}

// setupApplication wires the orchestrator, composition engine, metrics
// endpoint, and NATS publisher from configuration
func setupApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	registry := metric.NewMetricsRegistry()
	bus := event.NewBus(event.WithLogger(logger))

	strategies := strategy.NewRegistry(strategy.WithHybridWeights(
		cfg.Orchestrator.HybridPerformanceWeight,
		cfg.Orchestrator.HybridAccuracyWeight,
	))

	orch := orchestrator.New(
		orchestrator.WithLogger(logger),
		orchestrator.WithMetricsRegistry(registry),
		orchestrator.WithEventBus(bus),
		orchestrator.WithStrategyRegistry(strategies),
		orchestrator.WithDefaultStrategy(cfg.Orchestrator.DefaultStrategy),
		orchestrator.WithDefaultTimeout(cfg.Orchestrator.MaxLatency()),
		orchestrator.WithBreakerConfig(breaker.Config{
			Threshold:    cfg.Breaker.Threshold,
			ResetTimeout: cfg.Breaker.ResetTimeout(),
		}),
	)

	// The engine shares the orchestrator's registry so compositions see
	// every registered pipeline.
	engine := composition.NewEngine(orch.Registry(),
		composition.WithLogger(logger),
		composition.WithMetricsRegistry(registry),
		composition.WithEventBus(bus),
		composition.WithExecutionDefaults(cfg.Composition.MaxConcurrency, cfg.Composition.StepTimeout()),
	)

	app := &application{
		orchestrator: orch,
		engine:       engine,
		bus:          bus,
	}

	if cfg.Metrics.Enabled {
		app.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := app.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		slog.Info("Metrics endpoint listening", "address", app.metricsServer.Address(), "path", cfg.Metrics.Path)
	}

	if cfg.NATS.Enabled {
		slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
		conn, err := distribute.Connect(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			app.shutdown(5 * time.Second)
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		app.natsConn = conn

		publisher, err := distribute.NewPublisher(conn, bus,
			distribute.WithLogger(logger),
			distribute.WithMetricsRegistry(registry),
		)
		if err != nil {
			app.shutdown(5 * time.Second)
			return nil, fmt.Errorf("create publisher: %w", err)
		}
		if err := publisher.Start(ctx); err != nil {
			app.shutdown(5 * time.Second)
			return nil, fmt.Errorf("start publisher: %w", err)
		}
		app.publisher = publisher
	}

	return app, nil
}

// shutdown stops subsystems in reverse dependency order
func (a *application) shutdown(timeout time.Duration) {
	if a.publisher != nil {
		if err := a.publisher.Stop(timeout); err != nil {
			slog.Warn("Publisher shutdown error", "error", err)
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain error", "error", err)
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.orchestrator.Cleanup(ctx)
	a.bus.Close()
}

// runWithSignalHandling starts the application and blocks until SIGINT or
// SIGTERM, then shuts down within the timeout
func runWithSignalHandling(ctx context.Context, cfg *config.Config, logger *slog.Logger, timeout time.Duration) error {
	app, err := setupApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig.String())

	app.shutdown(timeout)
	slog.Info("Shutdown complete")
	return nil
}
