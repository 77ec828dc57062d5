package pipeline

import (
	"maps"
	"time"
)

// Capability identifies a named analysis feature a pipeline can provide.
// Capabilities are opaque tags; the orchestrator only compares them for
// set membership.
type Capability string

// Well-known capabilities. Pipelines are free to declare capabilities outside
// this list; these constants exist so built-in pipelines and callers agree on
// spelling.
const (
	CapabilityFaceDetection   Capability = "face_detection"
	CapabilityEyeTracking     Capability = "eye_tracking"
	CapabilityGazeEstimation  Capability = "gaze_estimation"
	CapabilityEmotionAnalysis Capability = "emotion_analysis"
	CapabilityPose6DOF        Capability = "pose_6dof"
	CapabilityPresence        Capability = "presence"
	CapabilitySpeechAnalysis  Capability = "speech_analysis"
	CapabilityAgeEstimation   Capability = "age_estimation"
)

// CapabilitySet is an unordered set of capabilities
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from a list, dropping duplicates
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Contains reports set membership
func (s CapabilitySet) Contains(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Intersects reports whether any capability in other is also in s
func (s CapabilitySet) Intersects(other CapabilitySet) bool {
	for c := range other {
		if s.Contains(c) {
			return true
		}
	}
	return false
}

// CostTier expresses a relative resource cost for ranking purposes
type CostTier string

// Resource cost tiers
const (
	TierLow    CostTier = "low"
	TierMedium CostTier = "medium"
	TierHigh   CostTier = "high"
)

// Weight returns a multiplier used by scoring strategies; cheaper tiers
// weigh closer to 1.0
func (t CostTier) Weight() float64 {
	switch t {
	case TierLow:
		return 1.0
	case TierMedium:
		return 0.8
	case TierHigh:
		return 0.6
	default:
		return 0.8
	}
}

// SizeTier expresses a relative model size for ranking purposes
type SizeTier string

// Model size tiers. Larger models score higher on accuracy-oriented
// strategies and lower on performance-oriented ones.
const (
	SizeSmall  SizeTier = "small"
	SizeMedium SizeTier = "medium"
	SizeLarge  SizeTier = "large"
)

// Weight returns a 0-1 score proportional to model size
func (t SizeTier) Weight() float64 {
	switch t {
	case SizeSmall:
		return 0.3
	case SizeMedium:
		return 0.6
	case SizeLarge:
		return 1.0
	default:
		return 0.6
	}
}

// PerformanceProfile describes a pipeline's declared performance
// characteristics. The orchestration core uses it purely as ranking input and
// never validates it against observed runtime behavior.
type PerformanceProfile struct {
	FPS       float64       `json:"fps"`
	Latency   time.Duration `json:"latency"`
	CPU       CostTier      `json:"cpu"`
	Memory    CostTier      `json:"memory"`
	Battery   CostTier      `json:"battery"`
	ModelSize SizeTier      `json:"model_size"`
}

// Input is a unit of analysis work, typically one captured frame plus
// arbitrary metadata. Data is shared by reference; pipelines must treat it
// as read-only.
type Input struct {
	Data       map[string]any `json:"data"`
	CapturedAt time.Time      `json:"captured_at"`
}

// NewInput builds an Input captured now
func NewInput(data map[string]any) Input {
	return Input{Data: data, CapturedAt: time.Now()}
}

// Merged returns a copy of the input with extra fields merged into Data.
// Extra fields win over existing keys. The receiver is not modified.
func (in Input) Merged(extra map[string]any) Input {
	if len(extra) == 0 {
		return in
	}
	merged := make(map[string]any, len(in.Data)+len(extra))
	maps.Copy(merged, in.Data)
	maps.Copy(merged, extra)
	return Input{Data: merged, CapturedAt: in.CapturedAt}
}

// Result is the outcome of one successful pipeline invocation
type Result struct {
	// Source names the pipeline that produced this result
	Source string `json:"source"`
	// Data holds the analysis output
	Data map[string]any `json:"data"`
	// Duration is how long the pipeline call took
	Duration time.Duration `json:"duration"`
	// CollectedAt is when the result settled
	CollectedAt time.Time `json:"collected_at"`
}

// Requirements states what a caller needs from a single orchestration
// request. Immutable per request.
type Requirements struct {
	// Capabilities the caller needs satisfied
	Capabilities []Capability `json:"capabilities"`
	// Strategy names the ranking strategy ("performance_first",
	// "accuracy_first", "hybrid")
	Strategy string `json:"strategy"`
	// MaxLatency bounds each pipeline call when > 0. Timeouts count as
	// failures for circuit breaker accounting.
	MaxLatency time.Duration `json:"max_latency,omitempty"`
	// TargetFPS is the frame rate the caller wants to sustain, used as
	// ranking input only
	TargetFPS float64 `json:"target_fps,omitempty"`
}

// CapabilitySet returns the required capabilities as a set
func (r Requirements) CapabilitySet() CapabilitySet {
	return NewCapabilitySet(r.Capabilities...)
}
