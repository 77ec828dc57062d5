package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/percept/breaker"
	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/pipeline"
)

// CapabilityOutcome is the per-capability slot of an aggregated result:
// either a successful result or the error that prevented one.
type CapabilityOutcome struct {
	Capability pipeline.Capability `json:"capability"`
	Result     *pipeline.Result    `json:"result,omitempty"`
	Err        error               `json:"-"`
}

// AggregatedResult collects per-capability outcomes for one Process call.
// Partial failure is normal: check each outcome's Err.
type AggregatedResult struct {
	Outcomes []CapabilityOutcome `json:"outcomes"`
	Duration time.Duration       `json:"duration"`
}

// Succeeded returns the outcomes that produced a result.
func (r AggregatedResult) Succeeded() []CapabilityOutcome {
	var out []CapabilityOutcome
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the outcomes that did not produce a result.
func (r AggregatedResult) Failed() []CapabilityOutcome {
	var out []CapabilityOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (o *Orchestrator) strategyName(req pipeline.Requirements) string {
	if req.Strategy != "" {
		return req.Strategy
	}
	return o.defaultStrategy
}

// SelectOptimalPipelines returns candidate pipeline names for the
// requirements: every registered pipeline whose capabilities intersect the
// requested set, ranked by the named strategy, with open-breaker pipelines
// filtered out. An empty result is not an error; callers must check.
func (o *Orchestrator) SelectOptimalPipelines(req pipeline.Requirements) ([]string, error) {
	ranked, err := o.rankCandidates(req)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ranked))
	for _, p := range ranked {
		if o.breakers.Get(p.Name()).State() == breaker.StateOpen {
			continue
		}
		names = append(names, p.Name())
	}
	if o.metrics != nil {
		o.metrics.RecordSelection(o.strategyName(req))
	}
	return names, nil
}

// rankCandidates looks up and ranks every pipeline intersecting the
// requested capabilities, without breaker filtering.
func (o *Orchestrator) rankCandidates(req pipeline.Requirements) ([]pipeline.Pipeline, error) {
	candidates := o.registry.LookupAll(req.CapabilitySet())
	ranked, err := o.strategies.Rank(o.strategyName(req), candidates, req)
	if err != nil {
		return nil, errors.Wrap(err, "Orchestrator", "rankCandidates", "strategy ranking")
	}
	return ranked, nil
}

// Process runs the top-ranked available pipeline for each required
// capability and aggregates their outputs. A pipeline covering several
// requested capabilities is invoked once and its result applied to each.
// Invocations run concurrently, gated by circuit breakers and bounded by
// req.MaxLatency when set (falling back to the configured default timeout);
// a timeout counts as a pipeline failure. Partial failures are tolerated;
// if no pipeline succeeds the error is an AllPipelinesFailedError listing
// every attempt.
func (o *Orchestrator) Process(ctx context.Context, in pipeline.Input, req pipeline.Requirements) (AggregatedResult, error) {
	started := time.Now()

	if len(req.Capabilities) == 0 {
		return AggregatedResult{}, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Orchestrator", "Process", "no capabilities requested")
	}
	ranked, err := o.rankCandidates(req)
	if err != nil {
		return AggregatedResult{}, err
	}
	if o.metrics != nil {
		o.metrics.RecordSelection(o.strategyName(req))
	}

	// Top-ranked available pipeline per capability; one invocation per
	// distinct pipeline even when it covers several capabilities.
	assignment := make(map[pipeline.Capability]pipeline.Pipeline)
	invocations := make(map[string]pipeline.Pipeline)
	for _, cap := range req.Capabilities {
		for _, p := range ranked {
			if !hasCapability(p, cap) {
				continue
			}
			if o.breakers.Get(p.Name()).State() == breaker.StateOpen {
				continue
			}
			assignment[cap] = p
			invocations[p.Name()] = p
			break
		}
	}
	if len(invocations) == 0 {
		return AggregatedResult{}, errors.WrapTransient(
			fmt.Errorf("%w: no pipeline available for %v", errors.ErrNoCandidates, req.Capabilities),
			"Orchestrator", "Process", "pipeline selection")
	}

	type callOutcome struct {
		res pipeline.Result
		err error
	}
	outcomes := make(map[string]callOutcome, len(invocations))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, p := range invocations {
		name, p := name, p
		g.Go(func() error {
			res, err := o.invoke(gctx, p, in, o.callBudget(req))
			mu.Lock()
			outcomes[name] = callOutcome{res: res, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := AggregatedResult{Duration: time.Since(started)}
	var attempts []errors.Attempt
	anySuccess := false
	seen := make(map[string]bool)
	for _, cap := range req.Capabilities {
		p, ok := assignment[cap]
		if !ok {
			result.Outcomes = append(result.Outcomes, CapabilityOutcome{
				Capability: cap,
				Err: fmt.Errorf("%w: no pipeline available for %q",
					errors.ErrNoCandidates, cap),
			})
			continue
		}
		out := outcomes[p.Name()]
		if out.err != nil {
			result.Outcomes = append(result.Outcomes, CapabilityOutcome{
				Capability: cap,
				Err:        out.err,
			})
			if !seen[p.Name()] {
				seen[p.Name()] = true
				attempts = append(attempts, errors.Attempt{Pipeline: p.Name(), Err: out.err})
			}
			continue
		}
		anySuccess = true
		res := out.res
		result.Outcomes = append(result.Outcomes, CapabilityOutcome{
			Capability: cap,
			Result:     &res,
		})
	}

	if !anySuccess {
		o.publish(event.New(event.TypeProcessFailed, "", map[string]any{
			"capabilities": req.Capabilities,
		}))
		return result, errors.NewAllPipelinesFailed(attempts)
	}
	o.publish(event.New(event.TypeProcessCompleted, "", map[string]any{
		"capabilities": req.Capabilities,
		"succeeded":    len(result.Succeeded()),
		"failed":       len(result.Failed()),
	}))
	return result, nil
}

// ProcessWithFallback tries ranked candidates strictly in order, advancing
// on failure or an open breaker, and returns the first success tagged with
// its source pipeline. Exhausting the list fails with an
// AllPipelinesFailedError aggregating every attempt's error.
func (o *Orchestrator) ProcessWithFallback(ctx context.Context, in pipeline.Input, req pipeline.Requirements) (pipeline.Result, error) {
	if len(req.Capabilities) == 0 {
		return pipeline.Result{}, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Orchestrator", "ProcessWithFallback", "no capabilities requested")
	}
	ranked, err := o.rankCandidates(req)
	if err != nil {
		return pipeline.Result{}, err
	}
	if o.metrics != nil {
		o.metrics.RecordSelection(o.strategyName(req))
	}

	var attempts []errors.Attempt
	for depth, p := range ranked {
		name := p.Name()
		res, err := o.invoke(ctx, p, in, o.callBudget(req))
		if err != nil {
			attempts = append(attempts, errors.Attempt{Pipeline: name, Err: err})
			continue
		}
		res.Source = name
		if o.metrics != nil {
			o.metrics.RecordFallbackDepth(depth + 1)
		}
		o.publish(event.New(event.TypeProcessCompleted, name, map[string]any{
			"fallback_depth": depth + 1,
		}))
		return res, nil
	}

	o.publish(event.New(event.TypeProcessFailed, "", map[string]any{
		"capabilities": req.Capabilities,
		"attempts":     len(attempts),
	}))
	return pipeline.Result{}, errors.NewAllPipelinesFailed(attempts)
}

// invoke runs one breaker-gated pipeline call with an optional latency
// budget. The timeout is best effort: the context is cancelled but the
// pipeline's work is not forcibly stopped, so a timed-out call may still be
// running in the background. Timeouts count as failures for breaker
// accounting; breaker rejections do not, and the pipeline is not invoked
// at all. Caller-side cancellation is not a pipeline fault and leaves the
// breaker untouched.
func (o *Orchestrator) invoke(ctx context.Context, p pipeline.Pipeline, in pipeline.Input, budget time.Duration) (pipeline.Result, error) {
	name := p.Name()
	b := o.breakers.Get(name)
	if allowErr := b.Allow(); allowErr != nil {
		return pipeline.Result{}, allowErr
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if budget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, budget)
	}
	defer cancel()

	started := time.Now()
	type outcome struct {
		res pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Process(callCtx, in)
		done <- outcome{res: res, err: err}
	}()

	var res pipeline.Result
	var err error
	select {
	case out := <-done:
		res, err = out.res, out.err
		// A pipeline that honors cancellation surfaces the deadline as its
		// own error; normalize it to the timeout sentinel.
		if err != nil && budget > 0 && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = errors.WrapTransient(
				fmt.Errorf("%w: %v budget exceeded", errors.ErrTimeout, budget),
				"Orchestrator", "invoke", "pipeline call")
		}
	case <-callCtx.Done():
		err = callCtx.Err()
		if budget > 0 && stderrors.Is(err, context.DeadlineExceeded) {
			err = errors.WrapTransient(
				fmt.Errorf("%w: %v budget exceeded", errors.ErrTimeout, budget),
				"Orchestrator", "invoke", "pipeline call")
		}
	}
	elapsed := time.Since(started)

	// The caller walked away; the pipeline did not fail. No breaker or
	// stats accounting.
	if err != nil && stderrors.Is(ctx.Err(), context.Canceled) {
		return pipeline.Result{}, err
	}

	o.recordCall(name, elapsed, err)

	if err != nil {
		b.RecordFailure()
		o.logger.Warn("pipeline call failed", "pipeline", name, "error", err, "elapsed", elapsed)
		return pipeline.Result{}, err
	}
	b.RecordSuccess()
	if res.Duration == 0 {
		res.Duration = elapsed
	}
	if res.Source == "" {
		res.Source = name
	}
	return res, nil
}

// callBudget is the request's MaxLatency, falling back to the configured
// default when the request sets none.
func (o *Orchestrator) callBudget(req pipeline.Requirements) time.Duration {
	if req.MaxLatency > 0 {
		return req.MaxLatency
	}
	return o.defaultTimeout
}

func hasCapability(p pipeline.Pipeline, c pipeline.Capability) bool {
	for _, pc := range p.Capabilities() {
		if pc == c {
			return true
		}
	}
	return false
}
