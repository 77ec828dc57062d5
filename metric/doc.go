// Package metric provides Prometheus-based metrics collection and an HTTP
// server for percept monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (pipeline invocations, circuit breaker state, composition
// executions) and custom service-specific metrics. It includes an HTTP server
// exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Service Registry: Extensible registration for service-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with a health check (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordPipelineProcessed("face-detector", "success")
//	core.RecordBreakerState("face-detector", 0)
package metric
