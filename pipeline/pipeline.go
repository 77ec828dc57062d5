package pipeline

import "context"

// Pipeline is the contract every analysis pipeline implements. The
// orchestration core treats pipelines as opaque capability-tagged units: it
// never inspects what a pipeline computes, only routes work to it and
// accounts for the outcome.
//
// Lifecycle: Initialize is called once during registration; Process any
// number of times afterwards, possibly concurrently; Cleanup once during
// unregistration. Cleanup is best effort - implementations should release
// what they can and not rely on the returned error stopping shutdown.
type Pipeline interface {
	// Name returns the unique pipeline identity used for registration,
	// circuit breaker tracking, and result tagging
	Name() string

	// Capabilities returns the analysis features this pipeline provides
	Capabilities() []Capability

	// Profile returns the declared performance characteristics used as
	// ranking input
	Profile() PerformanceProfile

	// Initialize prepares the pipeline for processing. A returned error
	// aborts registration.
	Initialize(ctx context.Context) error

	// Process runs one unit of analysis. The context carries the caller's
	// latency budget; implementations that honor cancellation stop early,
	// but the core does not require it (timeouts are best effort).
	Process(ctx context.Context, input Input) (Result, error)

	// Cleanup releases pipeline resources. Best effort.
	Cleanup(ctx context.Context) error
}
