// Package testutil provides test doubles for percept tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360/percept/pipeline"
)

// StubPipeline is a configurable pipeline for testing. Every lifecycle hook
// can be overridden; call counts are tracked for verification. Thread-safe
// for concurrent use from multiple goroutines.
type StubPipeline struct {
	mu sync.Mutex

	PipelineName string
	Caps         []pipeline.Capability
	Perf         pipeline.PerformanceProfile

	// Hooks. A nil hook means the default no-op behavior.
	InitializeFunc func(ctx context.Context) error
	ProcessFunc    func(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
	CleanupFunc    func(ctx context.Context) error

	// Call counts for verification
	InitializeCalls int
	ProcessCalls    int
	CleanupCalls    int
}

// NewStubPipeline creates a stub with the given name and capabilities and a
// neutral performance profile.
func NewStubPipeline(name string, caps ...pipeline.Capability) *StubPipeline {
	return &StubPipeline{
		PipelineName: name,
		Caps:         caps,
		Perf: pipeline.PerformanceProfile{
			FPS:       30,
			Latency:   20 * time.Millisecond,
			CPU:       pipeline.TierMedium,
			Memory:    pipeline.TierMedium,
			Battery:   pipeline.TierMedium,
			ModelSize: pipeline.SizeMedium,
		},
	}
}

// Name returns the stub's pipeline name.
func (s *StubPipeline) Name() string { return s.PipelineName }

// Capabilities returns the stub's advertised capabilities.
func (s *StubPipeline) Capabilities() []pipeline.Capability { return s.Caps }

// Profile returns the stub's performance profile.
func (s *StubPipeline) Profile() pipeline.PerformanceProfile { return s.Perf }

// Initialize invokes InitializeFunc if set.
func (s *StubPipeline) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.InitializeCalls++
	fn := s.InitializeFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Process invokes ProcessFunc if set, otherwise echoes the input data back
// as a result attributed to the stub.
func (s *StubPipeline) Process(ctx context.Context, in pipeline.Input) (pipeline.Result, error) {
	s.mu.Lock()
	s.ProcessCalls++
	fn := s.ProcessFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, in)
	}
	return pipeline.Result{
		Source:      s.PipelineName,
		Data:        in.Data,
		CollectedAt: time.Now(),
	}, nil
}

// Cleanup invokes CleanupFunc if set.
func (s *StubPipeline) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	s.CleanupCalls++
	fn := s.CleanupFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// Calls returns the current call counts as (initialize, process, cleanup).
func (s *StubPipeline) Calls() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InitializeCalls, s.ProcessCalls, s.CleanupCalls
}
