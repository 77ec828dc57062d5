// Package strategy ranks candidate pipelines for a requirement set.
//
// A strategy is a pure scoring function over a pipeline's performance
// profile; the registry sorts candidates by descending score with a stable
// sort, so ties preserve registration order and ranking stays deterministic
// across calls. Three strategies ship built in: performance_first,
// accuracy_first, and hybrid (a configurable blend of the two). Callers can
// register additional strategies under their own names.
package strategy
