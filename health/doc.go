// Package health tracks per-pipeline and aggregate health status.
//
// The orchestrator derives pipeline health from circuit breaker state
// (closed is healthy, half_open degraded, open unhealthy) and records it in
// a Monitor. AggregateHealth rolls every pipeline's status into one system
// status: any unhealthy pipeline makes the system unhealthy, otherwise any
// degraded pipeline makes it degraded.
package health
