// Package testutil provides test doubles for percept tests.
//
// StubPipeline is a configurable pipeline implementation with overridable
// lifecycle hooks and call counting. ManualClock is a deterministic clock
// for exercising time-dependent circuit breaker behavior. MockConn is an
// in-memory NATS connection for testing result distribution without a
// server.
//
// All doubles are thread-safe and carry no domain assumptions beyond the
// pipeline contract itself.
package testutil
