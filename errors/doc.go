// Package errors provides standardized error handling patterns for percept
// components.
//
// # Overview
//
// The package implements a three-class error classification system for the
// orchestration core: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification enables intelligent handling throughout percept, letting the
// orchestrator decide about fallbacks, circuit breaker accounting, and
// graceful degradation without hardcoded error string matching.
//
// # Error Taxonomy
//
// Sentinel variables cover the conditions the orchestration core raises:
//
//   - Registration: ErrDuplicateName, ErrInitialization, ErrNotRegistered
//   - Caller references: ErrUnknownStrategy, ErrUnknownPattern, ErrUnknownPipeline
//   - Processing: ErrCircuitOpen, ErrTimeout, ErrNoCandidates, ErrAllPipelinesFailed
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// AllPipelinesFailedError is the structured form of ErrAllPipelinesFailed: it
// carries one Attempt per candidate so callers can diagnose why every
// fallback was exhausted. It matches errors.Is(err, ErrAllPipelinesFailed).
//
// # Error Wrapping Pattern
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Orchestrator", "Process", "pipeline call")
//	errors.WrapInvalid(err, "Registry", "Register", "name validation")
//	errors.WrapFatal(err, "Engine", "Execute", "malformed composition")
//
// The generic Wrap() preserves the original error's classification.
//
// # Integration with errors.As/Is
//
// All error types support standard library inspection. Classification is
// preserved through wrapping chains, and context errors
// (context.DeadlineExceeded, context.Canceled) classify as Transient so
// per-call timeouts and circuit breaker accounting treat them uniformly.
//
// # Retry Configuration
//
// RetryConfig integrates with the percept/pkg/retry framework via
// ToRetryConfig(); registration uses it to tolerate transient pipeline
// initialization failures.
package errors
