// Package breaker implements per-pipeline circuit breaking.
//
// Each pipeline name gets an independent state machine with three states:
// closed (calls pass, consecutive failures counted), open (calls rejected
// until the reset timeout elapses), and half_open (exactly one trial call
// admitted). A success in any state closes the breaker; a failed trial
// reopens it. Defaults: 5 consecutive failures to open, 30s reset timeout.
//
// The open-to-half_open transition is applied lazily on the next state read
// rather than by a timer goroutine. The OnStateChange hook runs with the
// breaker's lock held and must not call back into the breaker.
package breaker
