// Package composition executes declared multi-pipeline workflows.
//
// A composition names a pattern and the pipelines it invokes. Sequential
// runs steps in declared order, optionally feeding each step's output into
// the next; parallel dispatches steps concurrently under a semaphore bound,
// settling on wait_all or wait_first policy; adaptive evaluates prioritized
// condition rules against the input and runs only the first matching rule's
// pipelines.
//
// Compositions are validated eagerly at creation (unknown patterns and
// unresolvable pipeline references fail fast) and are stateless across
// executions. Execute always returns a Result; individual step failures are
// recorded in it rather than raised as errors.
package composition
