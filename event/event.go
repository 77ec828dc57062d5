package event

import "time"

// Type classifies bus events
type Type string

// Event types emitted by the orchestrator and composition engine
const (
	TypePipelineRegistered   Type = "pipeline.registered"
	TypePipelineUnregistered Type = "pipeline.unregistered"
	TypeBreakerStateChanged  Type = "breaker.state_changed"
	TypeProcessCompleted     Type = "process.completed"
	TypeProcessFailed        Type = "process.failed"
	TypeCompositionCompleted Type = "composition.completed"
)

// Event is one bus notification. Data carries type-specific payload fields
// (pipeline name, breaker states, result summaries) and must be treated as
// read-only by subscribers.
type Event struct {
	Type      Type           `json:"type"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(eventType Type, pipeline string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Pipeline:  pipeline,
		Timestamp: time.Now(),
		Data:      data,
	}
}
