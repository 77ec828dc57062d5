package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/percept/breaker"
	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/health"
	"github.com/c360/percept/metric"
	"github.com/c360/percept/pipeline"
	"github.com/c360/percept/strategy"
)

// Orchestrator is the request façade over registered pipelines: it selects
// candidates by capability, ranks them by strategy, gates every invocation
// through a per-pipeline circuit breaker, and aggregates results.
type Orchestrator struct {
	registry   *pipeline.Registry
	strategies *strategy.Registry
	breakers   *breaker.Set
	monitor    *health.Monitor
	metrics    *metric.Metrics
	bus        *event.Bus
	logger     *slog.Logger

	defaultStrategy string
	defaultTimeout  time.Duration
	breakerConfig   breaker.Config

	statsMu sync.Mutex
	stats   map[string]*pipelineStats
}

type pipelineStats struct {
	processed int64
	failed    int64
	totalTime time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger, shared with its registry.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetricsRegistry wires orchestration metrics into a shared registry.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(o *Orchestrator) {
		o.metrics = reg.CoreMetrics()
	}
}

// WithEventBus attaches a bus that receives registration, breaker, and
// processing events. The bus stays open across Cleanup; the caller owns it.
func WithEventBus(bus *event.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithBreakerConfig overrides the circuit breaker settings applied to every
// pipeline.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(o *Orchestrator) {
		o.breakerConfig = cfg
	}
}

// WithStrategyRegistry replaces the default strategy registry.
func WithStrategyRegistry(reg *strategy.Registry) Option {
	return func(o *Orchestrator) {
		o.strategies = reg
	}
}

// WithDefaultStrategy sets the strategy used when a request names none.
func WithDefaultStrategy(name string) Option {
	return func(o *Orchestrator) {
		o.defaultStrategy = name
	}
}

// WithDefaultTimeout sets the per-call latency budget used when a request
// sets no MaxLatency. Zero leaves calls unbounded.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.defaultTimeout = d
	}
}

// New creates an orchestrator with an empty pipeline registry. The
// registry's health probe is wired to breaker state so a broken pipeline's
// name can be reclaimed by re-registration.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		strategies:      strategy.NewRegistry(),
		monitor:         health.NewMonitor(),
		logger:          slog.Default(),
		defaultStrategy: strategy.Hybrid,
		breakerConfig:   breaker.DefaultConfig(),
		stats:           make(map[string]*pipelineStats),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.breakerConfig
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to breaker.State) {
		o.onBreakerChange(name, from, to)
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	o.breakers = breaker.NewSet(cfg)

	o.registry = pipeline.NewRegistry(
		pipeline.WithLogger(o.logger),
		pipeline.WithHealthProbe(func(name string) bool {
			return o.breakers.Get(name).State() != breaker.StateOpen
		}),
	)
	return o
}

// Registry returns the pipeline registry. The composition engine resolves
// step pipelines against it.
func (o *Orchestrator) Registry() *pipeline.Registry {
	return o.registry
}

// onBreakerChange runs inside the breaker's lock; it must not call back
// into the breaker.
func (o *Orchestrator) onBreakerChange(name string, from, to breaker.State) {
	if o.metrics != nil {
		o.metrics.RecordBreakerState(name, int(to))
	}
	switch to {
	case breaker.StateOpen:
		o.monitor.UpdateUnhealthy(name, "circuit open")
	case breaker.StateHalfOpen:
		o.monitor.UpdateDegraded(name, "circuit half open, trial pending")
	case breaker.StateClosed:
		o.monitor.UpdateHealthy(name, "circuit closed")
	}
	o.publish(event.New(event.TypeBreakerStateChanged, name, map[string]any{
		"from": from.String(),
		"to":   to.String(),
	}))
	o.logger.Info("breaker state changed",
		"pipeline", name, "from", from.String(), "to", to.String())
}

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// RegisterPipeline registers and initializes a pipeline and arms its
// circuit breaker.
func (o *Orchestrator) RegisterPipeline(ctx context.Context, p pipeline.Pipeline) error {
	if err := o.registry.Register(ctx, p); err != nil {
		return errors.Wrap(err, "Orchestrator", "RegisterPipeline", "registry update")
	}
	name := p.Name()
	// A replaced pipeline starts with a clean breaker.
	o.breakers.Remove(name)
	b := o.breakers.Get(name)
	o.monitor.Update(name, health.FromBreakerSnapshot(b.Snapshot()))

	if o.metrics != nil {
		o.metrics.RecordPipelinesRegistered(o.registry.Len())
		o.metrics.RecordBreakerState(name, int(breaker.StateClosed))
	}
	o.publish(event.New(event.TypePipelineRegistered, name, map[string]any{
		"capabilities": p.Capabilities(),
	}))
	return nil
}

// UnregisterPipeline removes a pipeline, runs its cleanup, and discards its
// circuit breaker state.
func (o *Orchestrator) UnregisterPipeline(ctx context.Context, name string) error {
	if err := o.registry.Unregister(ctx, name); err != nil {
		return errors.Wrap(err, "Orchestrator", "UnregisterPipeline", "registry update")
	}
	o.breakers.Remove(name)
	o.monitor.Remove(name)

	o.statsMu.Lock()
	delete(o.stats, name)
	o.statsMu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordPipelinesRegistered(o.registry.Len())
		o.metrics.RemoveBreakerState(name)
	}
	o.publish(event.New(event.TypePipelineUnregistered, name, nil))
	return nil
}

// Pipelines returns the registered pipeline names in registration order.
func (o *Orchestrator) Pipelines() []string {
	return o.registry.Names()
}

// Cleanup unregisters every pipeline, releasing their resources, and
// discards all breaker and health state. Idempotent; the orchestrator can
// register new pipelines afterward.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.registry.Clear(ctx)
	o.breakers.Clear()
	o.monitor.Clear()

	o.statsMu.Lock()
	o.stats = make(map[string]*pipelineStats)
	o.statsMu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordPipelinesRegistered(0)
	}
	o.logger.Info("orchestrator cleaned up")
}

func (o *Orchestrator) recordCall(name string, d time.Duration, err error) {
	o.statsMu.Lock()
	st, ok := o.stats[name]
	if !ok {
		st = &pipelineStats{}
		o.stats[name] = st
	}
	st.processed++
	st.totalTime += d
	if err != nil {
		st.failed++
	}
	o.statsMu.Unlock()

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		o.metrics.RecordPipelineProcessed(name, status)
		o.metrics.RecordProcessingDuration(name, d)
	}
}
