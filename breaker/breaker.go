package breaker

import (
	"sync"
	"time"

	"github.com/c360/percept/errors"
)

// State is the circuit breaker state
type State int

const (
	// StateClosed allows calls to pass through
	StateClosed State = iota
	// StateOpen rejects all calls
	StateOpen
	// StateHalfOpen admits a single trial call to test recovery
	StateHalfOpen
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Clock abstracts time for testing
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config configures a breaker
type Config struct {
	// Threshold is the consecutive failure count that opens the breaker
	Threshold int
	// ResetTimeout is how long an open breaker waits before admitting a
	// trial call
	ResetTimeout time.Duration
	// OnStateChange is invoked after every state transition
	OnStateChange func(name string, from, to State)
	// Clock overrides the time source; nil means the system clock
	Clock Clock
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
}

// Snapshot is a point-in-time view of one breaker's state.
type Snapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// Breaker is the failure state machine for one pipeline name.
//
// Closed passes calls through and counts consecutive failures; reaching the
// threshold opens the breaker. Open rejects calls until ResetTimeout has
// elapsed since openedAt, then a single trial call is admitted (half_open).
// A success in any state closes the breaker and resets the failure count; a
// half_open failure reopens it with a fresh openedAt.
type Breaker struct {
	name   string
	config Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	trialTaken  bool
}

// New creates a closed breaker for the given name.
func New(name string, config Config) *Breaker {
	config.applyDefaults()
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed. In half_open state only the
// first Allow after the transition returns true; the caller must follow up
// with RecordSuccess or RecordFailure to settle the trial.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.trialTaken {
			return errors.WrapTransient(errors.ErrCircuitOpen, "Breaker", "Allow", "trial in flight")
		}
		b.trialTaken = true
		return nil
	default:
		return errors.WrapTransient(errors.ErrCircuitOpen, "Breaker", "Allow", "circuit open")
	}
}

// RecordSuccess closes the breaker and resets the failure count, whatever
// the current state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.toState(StateClosed)
}

// RecordFailure counts a failure. Reaching the threshold while closed, or
// any failure while half_open, opens the breaker and stamps openedAt.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.config.Clock.Now()

	switch b.currentState() {
	case StateClosed:
		if b.failures >= b.config.Threshold {
			b.toState(StateOpen)
		}
	case StateHalfOpen:
		b.toState(StateOpen)
	}
}

// State returns the current state, applying the open-to-half_open timeout
// transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Snapshot returns a copy of the breaker's state for introspection.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:                b.name,
		State:               b.currentState().String(),
		ConsecutiveFailures: b.failures,
		LastFailureTime:     b.lastFailure,
		OpenedAt:            b.openedAt,
	}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.toState(StateClosed)
}

// currentState applies the lazy open-to-half_open transition. Caller holds
// the lock.
func (b *Breaker) currentState() State {
	if b.state == StateOpen {
		if b.config.Clock.Now().Sub(b.openedAt) >= b.config.ResetTimeout {
			b.toState(StateHalfOpen)
		}
	}
	return b.state
}

// toState transitions and fires the change hook. openedAt is stamped only on
// a transition into open, never refreshed while already open. Caller holds
// the lock.
func (b *Breaker) toState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = b.config.Clock.Now()
	case StateHalfOpen:
		b.trialTaken = false
	case StateClosed:
		b.trialTaken = false
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}
