// Package orchestrator coordinates pipeline selection, invocation, and
// failure isolation behind a single request interface.
//
// Callers state which capabilities they need and which ranking strategy to
// apply; the orchestrator finds candidate pipelines through the capability
// registry, ranks them, and invokes them gated by per-pipeline circuit
// breakers. Process fans out across capabilities and tolerates partial
// failure; ProcessWithFallback walks one ranked candidate list until a
// pipeline succeeds.
//
// Per-call timeouts derived from the request's latency budget are best
// effort: the call's context is cancelled on expiry, but a pipeline that
// ignores cancellation keeps running in the background while the
// orchestrator moves on. Timed-out calls count as failures toward the
// pipeline's breaker.
package orchestrator
