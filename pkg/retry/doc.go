// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, used
// by pipeline registration (transient initialization failures) and the result
// distributor (connection establishment).
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (startup paths)
//
// Errors wrapped with NonRetryable fail immediately without further attempts.
// Backoff sleeps honor context cancellation.
package retry
