package resilience

import (
	"errors"
	"sync"
)

// ErrCircuitOpen is returned by Execute once the breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// ReadyToTrip decides, after a failure, whether to open.
	ReadyToTrip func(counts Counts) bool
	// OnStateChange is called when the breaker opens.
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Requests            uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// Breaker counts call outcomes and rejects every call once ReadyToTrip
// says so. An open breaker stays open; callers that want to try again
// create a new one.
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs fn unless the breaker is open, and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.counts.Requests++
	b.mu.Unlock()

	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	if success {
		b.counts.ConsecutiveFailures = 0
		b.mu.Unlock()
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	if b.state != StateClosed || !b.settings.ReadyToTrip(b.counts) {
		b.mu.Unlock()
		return
	}
	b.state = StateOpen
	b.mu.Unlock()

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, StateClosed, StateOpen)
	}
}
