package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"circuit open", ErrCircuitOpen, true},
		{"timeout", ErrTimeout, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"duplicate name", ErrDuplicateName, false},
		{"invalid config", ErrInvalidConfig, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"connection in message", fmt.Errorf("connection refused by peer"), true},
		{"plain error", fmt.Errorf("model produced garbage"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.expected {
				t.Errorf("IsTransient(%v) = %v, expected %v", test.err, got, test.expected)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"duplicate name", ErrDuplicateName, true},
		{"unknown strategy", ErrUnknownStrategy, true},
		{"unknown pattern", ErrUnknownPattern, true},
		{"unknown pipeline", ErrUnknownPipeline, true},
		{"circuit open", ErrCircuitOpen, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsInvalid(test.err); got != test.expected {
				t.Errorf("IsInvalid(%v) = %v, expected %v", test.err, got, test.expected)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrInvalidConfig) {
		t.Error("expected ErrInvalidConfig to be fatal")
	}
	if IsFatal(ErrTimeout) {
		t.Error("expected ErrTimeout not to be fatal")
	}
	if IsFatal(nil) {
		t.Error("expected nil not to be fatal")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil defaults to transient", nil, ErrorTransient},
		{"timeout is transient", ErrTimeout, ErrorTransient},
		{"duplicate is invalid", ErrDuplicateName, ErrorInvalid},
		{"invalid config is fatal", ErrInvalidConfig, ErrorFatal},
		{"unknown defaults to transient", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("Classify(%v) = %v, expected %v", test.err, got, test.expected)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, "Registry", "Register", "initialize")

	expected := "Registry.Register: initialize failed: boom"
	if wrapped.Error() != expected {
		t.Errorf("expected %q, got %q", expected, wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match the base error")
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	if Wrap(nil, "C", "M", "a") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapTransient(nil, "C", "M", "a") != nil {
		t.Error("WrapTransient(nil) should return nil")
	}
	if WrapInvalid(nil, "C", "M", "a") != nil {
		t.Error("WrapInvalid(nil) should return nil")
	}
	if WrapFatal(nil, "C", "M", "a") != nil {
		t.Error("WrapFatal(nil) should return nil")
	}
}

func TestWrapClassification_PreservedThroughChain(t *testing.T) {
	base := errors.New("disk exploded")

	transient := WrapTransient(base, "Pipeline", "Process", "inference")
	if !IsTransient(transient) {
		t.Error("WrapTransient result should classify as transient")
	}

	// A second neutral wrap must not lose the classification
	rewrapped := fmt.Errorf("outer: %w", transient)
	if !IsTransient(rewrapped) {
		t.Error("classification should survive fmt.Errorf wrapping")
	}

	var ce *ClassifiedError
	if !errors.As(rewrapped, &ce) {
		t.Fatal("expected ClassifiedError in chain")
	}
	if ce.Component != "Pipeline" || ce.Operation != "Process" {
		t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
	}
}

func TestAllPipelinesFailedError(t *testing.T) {
	err := NewAllPipelinesFailed([]Attempt{
		{Pipeline: "face-a", Err: errors.New("model crashed")},
		{Pipeline: "face-b", Err: ErrCircuitOpen},
	})

	if !errors.Is(err, ErrAllPipelinesFailed) {
		t.Error("expected errors.Is match on ErrAllPipelinesFailed")
	}

	msg := err.Error()
	if !strings.Contains(msg, "face-a") || !strings.Contains(msg, "face-b") {
		t.Errorf("error message should name every attempted pipeline: %q", msg)
	}
	if !strings.Contains(msg, "model crashed") {
		t.Errorf("error message should include per-candidate causes: %q", msg)
	}
}

func TestAllPipelinesFailedError_Empty(t *testing.T) {
	err := NewAllPipelinesFailed(nil)
	if err.Error() != ErrAllPipelinesFailed.Error() {
		t.Errorf("unexpected message for empty attempts: %q", err.Error())
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	if !cfg.ShouldRetry(ErrTimeout, 0) {
		t.Error("transient error below max retries should retry")
	}
	if cfg.ShouldRetry(ErrTimeout, cfg.MaxRetries) {
		t.Error("should not retry at max retries")
	}
	if cfg.ShouldRetry(ErrDuplicateName, 0) {
		t.Error("invalid error should not retry")
	}
	if cfg.ShouldRetry(nil, 0) {
		t.Error("nil error should not retry")
	}
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 4, BackoffFactor: 1.5}
	rc := cfg.ToRetryConfig()

	if rc.MaxAttempts != 5 {
		t.Errorf("expected 5 total attempts, got %d", rc.MaxAttempts)
	}
	if rc.Multiplier != 1.5 {
		t.Errorf("expected multiplier 1.5, got %f", rc.Multiplier)
	}
	if !rc.AddJitter {
		t.Error("expected jitter enabled")
	}
}
