package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c360/percept/errors"
	"github.com/c360/percept/pipeline"
)

// Built-in strategy names
const (
	PerformanceFirst = "performance_first"
	AccuracyFirst    = "accuracy_first"
	Hybrid           = "hybrid"
)

// Scorer rates a pipeline against a requirement set. Higher is better.
// Scorers must be pure: same inputs, same score, no side effects.
type Scorer func(p pipeline.Pipeline, req pipeline.Requirements) float64

// Registry holds named scoring strategies and ranks candidate pipelines.
type Registry struct {
	mu      sync.RWMutex
	scorers map[string]Scorer
}

// RegistryOption configures a strategy Registry
type RegistryOption func(*Registry)

// WithHybridWeights overrides the blend between the performance and accuracy
// scores used by the hybrid strategy. Weights are normalized, so any
// positive pair works.
func WithHybridWeights(performance, accuracy float64) RegistryOption {
	return func(r *Registry) {
		r.scorers[Hybrid] = hybridScorer(performance, accuracy)
	}
}

// NewRegistry creates a registry pre-loaded with the built-in strategies.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		scorers: map[string]Scorer{
			PerformanceFirst: PerformanceScore,
			AccuracyFirst:    AccuracyScore,
			Hybrid:           hybridScorer(0.5, 0.5),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a named strategy.
func (r *Registry) Register(name string, s Scorer) error {
	if name == "" || s == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "StrategyRegistry", "Register",
			"empty name or nil scorer")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[name] = s
	return nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scorers))
	for n := range r.scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rank orders candidates by descending score under the named strategy. Ties
// keep the candidates' incoming order (registration order when the list
// comes from the capability registry), which makes repeated calls
// deterministic. The input slice is not modified.
func (r *Registry) Rank(name string, candidates []pipeline.Pipeline, req pipeline.Requirements) ([]pipeline.Pipeline, error) {
	r.mu.RLock()
	scorer, ok := r.scorers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, name),
			"StrategyRegistry", "Rank", "strategy lookup")
	}

	type scored struct {
		p     pipeline.Pipeline
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, p := range candidates {
		ranked[i] = scored{p: p, score: scorer(p, req)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]pipeline.Pipeline, len(ranked))
	for i, s := range ranked {
		out[i] = s.p
	}
	return out, nil
}

// Score evaluates a single candidate under the named strategy.
func (r *Registry) Score(name string, p pipeline.Pipeline, req pipeline.Requirements) (float64, error) {
	r.mu.RLock()
	scorer, ok := r.scorers[name]
	r.mu.RUnlock()
	if !ok {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, name),
			"StrategyRegistry", "Score", "strategy lookup")
	}
	return scorer(p, req), nil
}

// PerformanceScore favors responsive, cheap pipelines: low latency, FPS near
// the requested target, penalized multiplicatively by resource cost tiers.
func PerformanceScore(p pipeline.Pipeline, req pipeline.Requirements) float64 {
	prof := p.Profile()

	// Latency term in (0, 1]: 1.0 at zero latency, 0.5 at 50ms.
	latency := float64(prof.Latency) / float64(time.Millisecond)
	if latency < 0 {
		latency = 0
	}
	latencyScore := 50.0 / (50.0 + latency)

	// FPS term in [0, 1]: proximity to the target when one is given,
	// otherwise normalized against a 60fps ceiling.
	var fpsScore float64
	if req.TargetFPS > 0 {
		diff := prof.FPS - req.TargetFPS
		if diff < 0 {
			diff = -diff
		}
		fpsScore = 1.0 - diff/req.TargetFPS
		if fpsScore < 0 {
			fpsScore = 0
		}
	} else {
		fpsScore = prof.FPS / 60.0
		if fpsScore > 1 {
			fpsScore = 1
		}
	}

	base := 0.6*latencyScore + 0.4*fpsScore
	return base * prof.CPU.Weight() * prof.Memory.Weight() * prof.Battery.Weight()
}

// AccuracyScore favors larger models as an accuracy proxy, with latency as a
// minor tiebreaker between equally sized models.
func AccuracyScore(p pipeline.Pipeline, _ pipeline.Requirements) float64 {
	prof := p.Profile()

	latency := float64(prof.Latency) / float64(time.Millisecond)
	if latency < 0 {
		latency = 0
	}
	tiebreak := 0.05 * (50.0 / (50.0 + latency))

	return prof.ModelSize.Weight() + tiebreak
}

func hybridScorer(performance, accuracy float64) Scorer {
	total := performance + accuracy
	if total <= 0 {
		performance, accuracy, total = 0.5, 0.5, 1
	}
	wp := performance / total
	wa := accuracy / total
	return func(p pipeline.Pipeline, req pipeline.Requirements) float64 {
		return wp*PerformanceScore(p, req) + wa*AccuracyScore(p, req)
	}
}
