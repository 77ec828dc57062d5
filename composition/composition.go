package composition

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/percept/pipeline"
)

// Pattern selects the execution algorithm for a composition
type Pattern string

// Supported composition patterns
const (
	Sequential Pattern = "sequential"
	Parallel   Pattern = "parallel"
	Adaptive   Pattern = "adaptive"
)

func (p Pattern) valid() bool {
	switch p {
	case Sequential, Parallel, Adaptive:
		return true
	}
	return false
}

// Synchronization controls when a parallel composition returns
type Synchronization string

// Parallel synchronization modes
const (
	// WaitAll waits for every step to settle before returning
	WaitAll Synchronization = "wait_all"
	// WaitFirst returns on the first success; remaining steps keep running
	// in the background and their outcomes are discarded
	WaitFirst Synchronization = "wait_first"
)

// Step is one pipeline invocation in a sequential or parallel composition
type Step struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`
}

// Condition is an adaptive rule predicate evaluated against the composition
// input. Conditions must be side-effect free.
type Condition func(in pipeline.Input) bool

// Rule is one branch of an adaptive composition. Higher priority rules are
// evaluated first; the first matching rule runs its pipelines sequentially
// and no other rule fires.
type Rule struct {
	ID        string    `json:"id"`
	Condition Condition `json:"-"`
	Pipelines []string  `json:"pipelines"`
	Priority  int       `json:"priority"`
}

// Options tune composition execution
type Options struct {
	// MaxConcurrency bounds in-flight parallel steps; zero means no bound
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// Synchronization selects the parallel return policy; default wait_all
	Synchronization Synchronization `json:"synchronization,omitempty"`
	// PassPreviousResults merges each sequential step's output into the
	// next step's input
	PassPreviousResults bool `json:"pass_previous_results,omitempty"`
	// StepTimeout is the per-step latency budget; zero means unbounded
	StepTimeout time.Duration `json:"step_timeout,omitempty"`
}

// Spec declares a composition to be validated and instantiated by the
// engine. Steps apply to sequential and parallel patterns, Rules to
// adaptive.
type Spec struct {
	Pattern Pattern `json:"pattern"`
	Steps   []Step  `json:"steps,omitempty"`
	Rules   []Rule  `json:"rules,omitempty"`
	Options Options `json:"options"`
}

// Composition is a validated, executable workflow. Stateless across
// executions; execute it any number of times and discard it.
type Composition struct {
	ID      string  `json:"id"`
	Pattern Pattern `json:"pattern"`
	Steps   []Step  `json:"steps,omitempty"`
	Rules   []Rule  `json:"rules,omitempty"`
	Options Options `json:"options"`
}

func newComposition(spec Spec) *Composition {
	c := &Composition{
		ID:      uuid.New().String(),
		Pattern: spec.Pattern,
		Steps:   make([]Step, len(spec.Steps)),
		Rules:   make([]Rule, len(spec.Rules)),
		Options: spec.Options,
	}
	copy(c.Steps, spec.Steps)
	copy(c.Rules, spec.Rules)
	if c.Options.Synchronization == "" {
		c.Options.Synchronization = WaitAll
	}
	return c
}

// StepResult is one step's outcome within a composition result
type StepResult struct {
	StepID   string           `json:"step_id"`
	Pipeline string           `json:"pipeline"`
	Success  bool             `json:"success"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Result is the outcome of one composition execution. Individual step
// failures are captured here, never raised as errors; Success reflects the
// pattern's overall verdict.
type Result struct {
	CompositionID string        `json:"composition_id"`
	Pattern       Pattern       `json:"pattern"`
	Success       bool          `json:"success"`
	Steps         []StepResult  `json:"steps"`
	Duration      time.Duration `json:"duration"`
}
