package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/c360/percept/errors"
	"github.com/c360/percept/pkg/retry"
)

// MaxNameLength bounds pipeline names for index safety
const MaxNameLength = 256

// ValidateName validates pipeline names: non-empty, bounded, and restricted
// to alphanumerics plus dash, underscore and dot.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName",
				"invalid name characters")
		}
	}
	return nil
}

// HealthProbe reports whether a registered pipeline is currently considered
// healthy. The orchestrator wires this to circuit breaker state so that a
// re-registration under a broken pipeline's name replaces it instead of
// failing with a duplicate error.
type HealthProbe func(name string) bool

// sameHandle reports whether two pipelines are the same registered instance.
// Direct interface equality panics when the dynamic type is incomparable
// (value types with func or slice fields), so identity goes through
// pointers; distinct value-type handles are never the same instance.
func sameHandle(a, b Pipeline) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return false
}

// entry tracks one registered pipeline plus its registration sequence number.
// The sequence number gives LookupAll a deterministic order that strategies
// use for stable tie-breaking.
type entry struct {
	pipeline Pipeline
	seq      uint64
}

// Registry indexes registered pipelines by name and capability. It owns
// registered pipelines exclusively: registration runs Initialize, removal
// runs Cleanup, and all mutation is serialized behind one mutex.
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	byCapability map[Capability]map[string]*entry
	nextSeq      uint64

	healthProbe HealthProbe
	initRetry   retry.Config
	logger      *slog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithHealthProbe installs a probe consulted on duplicate registration
func WithHealthProbe(probe HealthProbe) RegistryOption {
	return func(r *Registry) {
		r.healthProbe = probe
	}
}

// WithInitRetry overrides the retry policy for transient Initialize failures
func WithInitRetry(cfg retry.Config) RegistryOption {
	return func(r *Registry) {
		r.initRetry = cfg
	}
}

// WithLogger sets the registry logger
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty pipeline registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:      make(map[string]*entry),
		byCapability: make(map[Capability]map[string]*entry),
		healthProbe:  func(string) bool { return true },
		initRetry:    errors.DefaultRetryConfig().ToRetryConfig(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates, initializes, and indexes a pipeline.
//
// A different pipeline already registered under the same name fails with
// ErrDuplicateName while that pipeline is healthy; an unhealthy holder of the
// name is cleaned up and replaced. Initialize failures abort registration
// with ErrInitialization and leave the index untouched; transient failures
// are retried per the registry's retry policy.
func (r *Registry) Register(ctx context.Context, p Pipeline) error {
	if p == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "nil pipeline")
	}
	name := p.Name()
	if err := ValidateName(name); err != nil {
		return errors.Wrap(err, "Registry", "Register", "name validation")
	}
	if len(p.Capabilities()) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("pipeline %q declares no capabilities", name),
			"Registry", "Register", "capability validation")
	}

	// Duplicate check before paying for Initialize. Re-checked under the
	// write lock below because registration can race.
	if prior, exists := r.get(name); exists {
		if !sameHandle(prior, p) && r.healthProbe(name) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrDuplicateName, name),
				"Registry", "Register", "duplicate name check")
		}
	}

	// Initialize outside the lock; it may do real I/O (model loading,
	// device handshakes). Non-transient failures stop the retry loop.
	initErr := retry.Do(ctx, r.initRetry, func() error {
		err := p.Initialize(ctx)
		if err != nil && !errors.IsTransient(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if initErr != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrInitialization, name, initErr),
			"Registry", "Register", "pipeline initialization")
	}

	r.mu.Lock()
	var replaced Pipeline
	if prior, exists := r.entries[name]; exists {
		if !sameHandle(prior.pipeline, p) && r.healthProbe(name) {
			// Lost a race against a concurrent healthy registration.
			r.mu.Unlock()
			if err := p.Cleanup(ctx); err != nil {
				r.logger.Warn("cleanup of racing pipeline failed", "pipeline", name, "error", err)
			}
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrDuplicateName, name),
				"Registry", "Register", "duplicate name check")
		}
		replaced = prior.pipeline
		r.removeLocked(name)
	}
	e := &entry{pipeline: p, seq: r.nextSeq}
	r.nextSeq++
	r.entries[name] = e
	for _, c := range p.Capabilities() {
		if r.byCapability[c] == nil {
			r.byCapability[c] = make(map[string]*entry)
		}
		r.byCapability[c][name] = e
	}
	r.mu.Unlock()

	if replaced != nil && !sameHandle(replaced, p) {
		if err := replaced.Cleanup(ctx); err != nil {
			r.logger.Warn("cleanup of replaced pipeline failed", "pipeline", name, "error", err)
		}
		r.logger.Info("pipeline replaced", "pipeline", name)
	} else {
		r.logger.Info("pipeline registered", "pipeline", name, "capabilities", p.Capabilities())
	}
	return nil
}

// Unregister runs Cleanup on the named pipeline and removes it from the
// index. Cleanup failures are logged, not returned; the pipeline is removed
// regardless.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	e, exists := r.entries[name]
	if !exists {
		r.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrNotRegistered, name),
			"Registry", "Unregister", "name lookup")
	}
	r.removeLocked(name)
	r.mu.Unlock()

	if err := e.pipeline.Cleanup(ctx); err != nil {
		r.logger.Warn("pipeline cleanup failed", "pipeline", name, "error", err)
	}
	r.logger.Info("pipeline unregistered", "pipeline", name)
	return nil
}

// removeLocked drops an entry from both indexes. Caller holds the write lock.
func (r *Registry) removeLocked(name string) {
	e, exists := r.entries[name]
	if !exists {
		return
	}
	delete(r.entries, name)
	for _, c := range e.pipeline.Capabilities() {
		delete(r.byCapability[c], name)
		if len(r.byCapability[c]) == 0 {
			delete(r.byCapability, c)
		}
	}
}

// get returns the pipeline registered under name
func (r *Registry) get(name string) (Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.pipeline, true
}

// Resolve returns the pipeline registered under name. It satisfies the
// composition engine's resolver contract.
func (r *Registry) Resolve(name string) (Pipeline, bool) {
	return r.get(name)
}

// Lookup returns all pipelines advertising the capability, in registration
// order.
func (r *Registry) Lookup(c Capability) []Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedPipelines(r.byCapability[c])
}

// LookupAll returns the union of Lookup over each capability: any pipeline
// satisfying at least one requested capability is a candidate. Deduplicated,
// in registration order. Selecting a covering combination is the
// orchestrator's job, not the registry's.
func (r *Registry) LookupAll(caps CapabilitySet) []Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]*entry)
	for c := range caps {
		for name, e := range r.byCapability[c] {
			union[name] = e
		}
	}
	return sortedPipelines(union)
}

func sortedPipelines(m map[string]*entry) []Pipeline {
	if len(m) == 0 {
		return nil
	}
	es := make([]*entry, 0, len(m))
	for _, e := range m {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })

	pipelines := make([]Pipeline, len(es))
	for i, e := range es {
		pipelines[i] = e.pipeline
	}
	return pipelines
}

// Names returns all registered pipeline names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	es := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })

	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.pipeline.Name()
	}
	return names
}

// Len returns the number of registered pipelines
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear unregisters every pipeline, running Cleanup on each. Used by
// orchestrator shutdown; idempotent.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	drained := make([]Pipeline, 0, len(r.entries))
	for _, e := range r.entries {
		drained = append(drained, e.pipeline)
	}
	r.entries = make(map[string]*entry)
	r.byCapability = make(map[Capability]map[string]*entry)
	r.mu.Unlock()

	for _, p := range drained {
		if err := p.Cleanup(ctx); err != nil {
			r.logger.Warn("pipeline cleanup failed", "pipeline", p.Name(), "error", err)
		}
	}
}
