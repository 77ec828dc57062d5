package breaker

import "sync"

// Set manages one breaker per pipeline name. Breakers are created lazily on
// first use and discarded when their pipeline is unregistered. State is
// tracked independently per name, never shared.
type Set struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
}

// NewSet creates an empty breaker set; every breaker it creates uses config.
func NewSet(config Config) *Set {
	config.applyDefaults()
	return &Set{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating a closed one if absent.
func (s *Set) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[name]
	if !ok {
		b = New(name, s.config)
		s.breakers[name] = b
	}
	return b
}

// Remove discards the breaker for name, if any.
func (s *Set) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, name)
}

// Snapshots returns a point-in-time view of every tracked breaker, keyed by
// pipeline name.
func (s *Set) Snapshots() map[string]Snapshot {
	s.mu.Lock()
	tracked := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		tracked = append(tracked, b)
	}
	s.mu.Unlock()

	out := make(map[string]Snapshot, len(tracked))
	for _, b := range tracked {
		snap := b.Snapshot()
		out[snap.Name] = snap
	}
	return out
}

// Clear discards every breaker.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = make(map[string]*Breaker)
}
