// Package percept provides capability-based orchestration for perception
// pipelines: registration, strategy-ranked selection, circuit-breaker
// protected invocation, and multi-pipeline composition.
//
// # Architecture
//
// Percept is organized around a small set of cooperating layers:
//
//	┌─────────────────────────────────────┐
//	│         Orchestrator                │  Selection, invocation,
//	│  (capabilities → ranked pipelines)  │  fallback, aggregation
//	└─────────────────────────────────────┘
//	           ↓ guards calls with
//	┌─────────────────────────────────────┐
//	│       Circuit Breakers              │  Per-pipeline failure
//	│   (closed / open / half-open)       │  isolation and recovery
//	└─────────────────────────────────────┘
//	           ↓ invokes
//	┌─────────────────────────────────────┐
//	│          Pipelines                  │  Registered processing
//	│  (capabilities + performance)       │  units
//	└─────────────────────────────────────┘
//
// The composition engine sits beside the orchestrator and executes
// multi-step workflows over the same registry: sequential chains,
// bounded-parallel fan-out, and adaptive rule-based branching.
//
// # Core Packages
//
//   - pipeline: the Pipeline interface, capability and performance types,
//     and the thread-safe registry with capability indexing
//   - strategy: pluggable scoring strategies that rank candidate
//     pipelines (performance_first, accuracy_first, hybrid)
//   - breaker: per-pipeline circuit breakers with lazy half-open
//     transitions and single-trial admission
//   - orchestrator: selection, per-capability fan-out, ordered fallback,
//     and runtime introspection
//   - composition: declarative multi-pipeline workflows
//   - distribute: NATS publication of results and lifecycle events
//   - event: in-process pub/sub connecting the layers above
//   - health, metric, config, errors: the operational surface
//
// # Quick Start
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	orch := orchestrator.New(
//		orchestrator.WithBreakerConfig(breaker.Config{
//			Threshold:    cfg.Breaker.Threshold,
//			ResetTimeout: cfg.Breaker.ResetTimeout(),
//		}),
//	)
//	if err := orch.RegisterPipeline(ctx, myPipeline); err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := orch.Process(ctx, input, pipeline.Requirements{
//		Capabilities: []pipeline.Capability{pipeline.CapabilityFaceDetection},
//	})
package percept
