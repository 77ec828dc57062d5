// Package pipeline defines the processing pipeline contract and the
// capability registry that indexes implementations.
//
// A Pipeline is a named unit of perception processing (face detection, gaze
// estimation, pose tracking) that advertises the capabilities it provides
// and a performance profile describing its cost. The Registry indexes
// pipelines by name and by capability so the orchestrator can discover
// candidates for a set of required capabilities.
//
// The registry owns pipeline lifecycle: Register runs Initialize (with
// retries for transient failures) before a pipeline becomes discoverable,
// and Unregister runs Cleanup after it stops being discoverable. Lookup
// results are returned in registration order, which higher layers rely on
// for deterministic ranking.
package pipeline
