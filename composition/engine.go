package composition

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/metric"
	"github.com/c360/percept/pipeline"
)

// Resolver maps pipeline names to handles. The pipeline registry satisfies
// this.
type Resolver interface {
	Resolve(name string) (pipeline.Pipeline, bool)
}

// Engine validates and executes compositions against a pipeline resolver.
type Engine struct {
	resolver Resolver
	metrics  *metric.Metrics
	bus      *event.Bus
	logger   *slog.Logger

	defaultMaxConcurrency int
	defaultStepTimeout    time.Duration

	statsMu sync.Mutex
	stats   map[Pattern]*patternStats
}

type patternStats struct {
	executed  int64
	succeeded int64
	totalTime time.Duration
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetricsRegistry wires composition metrics into a shared registry
func WithMetricsRegistry(reg *metric.MetricsRegistry) EngineOption {
	return func(e *Engine) {
		e.metrics = reg.CoreMetrics()
	}
}

// WithEventBus attaches a bus that receives composition execution events
func WithEventBus(bus *event.Bus) EngineOption {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithExecutionDefaults sets the MaxConcurrency and StepTimeout applied to
// compositions whose spec leaves them zero.
func WithExecutionDefaults(maxConcurrency int, stepTimeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.defaultMaxConcurrency = maxConcurrency
		e.defaultStepTimeout = stepTimeout
	}
}

// NewEngine creates an engine resolving pipeline names through resolver.
func NewEngine(resolver Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver: resolver,
		logger:   slog.Default(),
		stats:    make(map[Pattern]*patternStats),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewComposition validates a spec and returns an executable composition.
// Validation is eager: an unknown pattern fails with ErrUnknownPattern and
// an unresolvable pipeline reference fails with ErrUnknownPipeline here,
// not at execution time.
func (e *Engine) NewComposition(spec Spec) (*Composition, error) {
	if !spec.Pattern.valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownPattern, spec.Pattern),
			"Engine", "NewComposition", "pattern validation")
	}

	switch spec.Pattern {
	case Adaptive:
		if len(spec.Rules) == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
				"Engine", "NewComposition", "adaptive composition needs rules")
		}
		for _, rule := range spec.Rules {
			if rule.Condition == nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("rule %q has no condition", rule.ID),
					"Engine", "NewComposition", "rule validation")
			}
			if len(rule.Pipelines) == 0 {
				return nil, errors.WrapInvalid(
					fmt.Errorf("rule %q references no pipelines", rule.ID),
					"Engine", "NewComposition", "rule validation")
			}
			for _, name := range rule.Pipelines {
				if err := e.checkResolvable(name); err != nil {
					return nil, err
				}
			}
		}
	default:
		if len(spec.Steps) == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
				"Engine", "NewComposition", "composition needs steps")
		}
		for _, step := range spec.Steps {
			if err := e.checkResolvable(step.Pipeline); err != nil {
				return nil, err
			}
		}
	}
	if spec.Options.MaxConcurrency == 0 {
		spec.Options.MaxConcurrency = e.defaultMaxConcurrency
	}
	if spec.Options.StepTimeout == 0 {
		spec.Options.StepTimeout = e.defaultStepTimeout
	}
	return newComposition(spec), nil
}

func (e *Engine) checkResolvable(name string) error {
	if _, ok := e.resolver.Resolve(name); !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownPipeline, name),
			"Engine", "NewComposition", "pipeline reference validation")
	}
	return nil
}

// Execute runs a composition against the input. Step failures never cause
// an error return; they are captured in the result. An error is returned
// only for structural problems (nil composition, unknown pattern).
func (e *Engine) Execute(ctx context.Context, comp *Composition, in pipeline.Input) (Result, error) {
	if comp == nil {
		return Result{}, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Engine", "Execute", "nil composition")
	}
	started := time.Now()

	var result Result
	switch comp.Pattern {
	case Sequential:
		result = e.runSequential(ctx, comp, in)
	case Parallel:
		result = e.runParallel(ctx, comp, in)
	case Adaptive:
		result = e.runAdaptive(ctx, comp, in)
	default:
		return Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownPattern, comp.Pattern),
			"Engine", "Execute", "pattern dispatch")
	}

	result.CompositionID = comp.ID
	result.Pattern = comp.Pattern
	result.Duration = time.Since(started)
	e.recordExecution(result)
	return result, nil
}

// runSequential executes steps strictly in declared order. A step failure
// aborts the remaining steps; results up to and including the failure are
// kept. With PassPreviousResults each step's output merges into the next
// step's input.
func (e *Engine) runSequential(ctx context.Context, comp *Composition, in pipeline.Input) Result {
	result := Result{Success: true}
	current := in
	for _, step := range comp.Steps {
		sr := e.runStep(ctx, step, current, comp.Options.StepTimeout)
		result.Steps = append(result.Steps, sr)
		if !sr.Success {
			result.Success = false
			break
		}
		if comp.Options.PassPreviousResults && sr.Result != nil {
			current = current.Merged(sr.Result.Data)
		}
	}
	return result
}

// runParallel dispatches steps concurrently, bounded by MaxConcurrency.
// wait_all settles every step and aggregates outcomes in declaration order;
// wait_first returns on the first success, leaving the rest running in the
// background with their outcomes discarded.
func (e *Engine) runParallel(ctx context.Context, comp *Composition, in pipeline.Input) Result {
	var sem chan struct{}
	if comp.Options.MaxConcurrency > 0 {
		sem = make(chan struct{}, comp.Options.MaxConcurrency)
	}

	type indexed struct {
		idx int
		sr  StepResult
	}
	outcomes := make(chan indexed, len(comp.Steps))
	for i, step := range comp.Steps {
		i, step := i, step
		go func() {
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			outcomes <- indexed{idx: i, sr: e.runStep(ctx, step, in, comp.Options.StepTimeout)}
		}()
	}

	if comp.Options.Synchronization == WaitFirst {
		// Settle until the first success; losers keep running unobserved.
		failures := make([]indexed, 0, len(comp.Steps))
		for range comp.Steps {
			out := <-outcomes
			if out.sr.Success {
				return Result{Success: true, Steps: []StepResult{out.sr}}
			}
			failures = append(failures, out)
		}
		// Nothing succeeded; report every failure in declaration order.
		sort.Slice(failures, func(i, j int) bool { return failures[i].idx < failures[j].idx })
		result := Result{Success: false}
		for _, f := range failures {
			result.Steps = append(result.Steps, f.sr)
		}
		return result
	}

	// wait_all: aggregation mirrors declaration order regardless of
	// completion order.
	steps := make([]StepResult, len(comp.Steps))
	for range comp.Steps {
		out := <-outcomes
		steps[out.idx] = out.sr
	}
	result := Result{Success: true, Steps: steps}
	for _, sr := range steps {
		if !sr.Success {
			result.Success = false
		}
	}
	return result
}

// runAdaptive evaluates rules in priority order (higher first, declaration
// order on ties) and runs only the first matching rule's pipelines,
// sequentially. No matching rule is a normal outcome: success=false with no
// step results.
func (e *Engine) runAdaptive(ctx context.Context, comp *Composition, in pipeline.Input) Result {
	rules := make([]Rule, len(comp.Rules))
	copy(rules, comp.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	for _, rule := range rules {
		if !rule.Condition(in) {
			continue
		}
		result := Result{Success: true}
		for _, name := range rule.Pipelines {
			sr := e.runStep(ctx, Step{ID: rule.ID, Pipeline: name}, in, comp.Options.StepTimeout)
			result.Steps = append(result.Steps, sr)
			if !sr.Success {
				result.Success = false
				break
			}
		}
		return result
	}
	return Result{Success: false}
}

// runStep resolves and invokes one pipeline with a best-effort timeout: on
// expiry the step is marked failed even though the pipeline may still be
// running in the background.
func (e *Engine) runStep(ctx context.Context, step Step, in pipeline.Input, budget time.Duration) StepResult {
	sr := StepResult{StepID: step.ID, Pipeline: step.Pipeline}
	started := time.Now()

	p, ok := e.resolver.Resolve(step.Pipeline)
	if !ok {
		// Unregistered since creation-time validation.
		sr.Error = fmt.Sprintf("pipeline %q no longer registered", step.Pipeline)
		sr.Duration = time.Since(started)
		return sr
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if budget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, budget)
	}
	defer cancel()

	type outcome struct {
		res pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Process(callCtx, in)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			sr.Error = out.err.Error()
		} else {
			res := out.res
			if res.Source == "" {
				res.Source = step.Pipeline
			}
			sr.Success = true
			sr.Result = &res
		}
	case <-callCtx.Done():
		if budget > 0 && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			sr.Error = fmt.Sprintf("step timeout: %v budget exceeded", budget)
		} else {
			// Caller-side cancellation, not a step timeout.
			sr.Error = callCtx.Err().Error()
		}
	}
	sr.Duration = time.Since(started)

	if !sr.Success {
		e.logger.Warn("composition step failed",
			"step", step.ID, "pipeline", step.Pipeline, "error", sr.Error)
	}
	return sr
}

func (e *Engine) recordExecution(result Result) {
	e.statsMu.Lock()
	st, ok := e.stats[result.Pattern]
	if !ok {
		st = &patternStats{}
		e.stats[result.Pattern] = st
	}
	st.executed++
	if result.Success {
		st.succeeded++
	}
	st.totalTime += result.Duration
	e.statsMu.Unlock()

	if e.metrics != nil {
		status := "success"
		if !result.Success {
			status = "failure"
		}
		e.metrics.RecordComposition(string(result.Pattern), status)
		e.metrics.RecordCompositionDuration(string(result.Pattern), result.Duration)
	}
	if e.bus != nil {
		e.bus.Publish(event.New(event.TypeCompositionCompleted, "", map[string]any{
			"composition_id": result.CompositionID,
			"pattern":        string(result.Pattern),
			"success":        result.Success,
			"steps":          len(result.Steps),
		}))
	}
}

// PatternStats summarizes executions of one pattern.
type PatternStats struct {
	Executed    int64         `json:"executed"`
	Succeeded   int64         `json:"succeeded"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// GetStats returns per-pattern execution counts and average duration.
func (e *Engine) GetStats() map[Pattern]PatternStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	out := make(map[Pattern]PatternStats, len(e.stats))
	for pattern, st := range e.stats {
		ps := PatternStats{Executed: st.executed, Succeeded: st.succeeded}
		if st.executed > 0 {
			ps.AvgDuration = st.totalTime / time.Duration(st.executed)
		}
		out[pattern] = ps
	}
	return out
}
