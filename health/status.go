// Package health tracks per-pipeline and aggregate health
package health

import (
	"time"

	"github.com/c360/percept/breaker"
)

// Status represents the health state of a pipeline or the whole orchestrator
type Status struct {
	Pipeline    string    `json:"pipeline"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters for one pipeline
type Metrics struct {
	Processed    int64         `json:"processed,omitempty"`
	Failures     int           `json:"failures"`
	AvgLatency   time.Duration `json:"avg_latency,omitempty"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// NewHealthy creates a new healthy status
func NewHealthy(pipeline, message string) Status {
	return Status{
		Pipeline:  pipeline,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(pipeline, message string) Status {
	return Status{
		Pipeline:  pipeline,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(pipeline, message string) Status {
	return Status{
		Pipeline:  pipeline,
		Healthy:   false,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// FromBreakerSnapshot maps circuit breaker state onto a health status:
// closed is healthy, half_open is degraded (recovery in progress), open is
// unhealthy.
func FromBreakerSnapshot(snap breaker.Snapshot) Status {
	var status Status
	switch snap.State {
	case "open":
		status = NewUnhealthy(snap.Name, "circuit open")
	case "half_open":
		status = NewDegraded(snap.Name, "circuit half open, trial pending")
	default:
		status = NewHealthy(snap.Name, "circuit closed")
	}
	return status.WithMetrics(&Metrics{
		Failures:     snap.ConsecutiveFailures,
		LastActivity: snap.LastFailureTime,
	})
}

// Aggregate creates a status by aggregating sub-statuses.
// The aggregation rules are:
//   - If all sub-statuses are healthy, the aggregate is healthy
//   - If any sub-status is unhealthy, the aggregate is unhealthy
//   - If no sub-status is unhealthy but at least one is degraded, the
//     aggregate is degraded
func Aggregate(name string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(name, "No pipelines registered")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	if hasUnhealthy {
		status = NewUnhealthy(name, "One or more pipelines are unhealthy")
	} else if hasDegraded {
		status = NewDegraded(name, "One or more pipelines are degraded")
	} else {
		status = NewHealthy(name, "All pipelines are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
