package brain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
)

// ErrCircuitOpen is returned by Allow while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit_open")

// Breaker defaults.
const (
	DefaultFailureThreshold = 3
	DefaultCoolDown         = 30 * time.Second
)

// BreakerState is the breaker's position in its state machine.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls flow through
	BreakerOpen                         // calls fail fast
	BreakerHalfOpen                     // one probe call allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker guards calls to the generation provider. Every Allow that returns
// nil must be followed by exactly one RecordSuccess or RecordFailure.
type Breaker interface {
	Allow() error
	RecordSuccess()
	RecordFailure()
	State() BreakerState
}

// CircuitBreaker opens after a run of consecutive failures, fails fast for a
// cool-down, then lets a single probe decide whether to close or reopen.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool

	threshold int
	coolDown  time.Duration
	now       func() time.Time
	onChange  func(from, to BreakerState)
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithStateChange registers a callback invoked, outside the lock, on every transition.
func WithStateChange(fn func(from, to BreakerState)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments select the defaults.
func NewCircuitBreaker(threshold int, coolDown time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	cb := &CircuitBreaker{threshold: threshold, coolDown: coolDown, now: time.Now}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	from := cb.state
	var err error
	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.coolDown {
			cb.state = BreakerHalfOpen
			cb.probeInFlight = true // this caller is the probe
		} else {
			err = ErrCircuitOpen
		}
	case BreakerHalfOpen:
		if cb.probeInFlight {
			err = ErrCircuitOpen
		} else {
			cb.probeInFlight = true
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return err
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.failures = 0
	cb.probeInFlight = false
	cb.state = BreakerClosed
	cb.mu.Unlock()
	cb.notify(from, BreakerClosed)
}

// RecordFailure counts a failure. A failed probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.probeInFlight = false
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and clears its failure count (operator override).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = BreakerClosed
	cb.failures = 0
	cb.probeInFlight = false
	cb.mu.Unlock()
	cb.notify(from, BreakerClosed)
}

func (cb *CircuitBreaker) notify(from, to BreakerState) {
	if from == to {
		return
	}
	logBreakerTransition(from.String(), to.String())
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

func logBreakerTransition(from, to string) {
	engageotel.RecordBreakerTransition(context.Background(), from, to)
	log.Warn().Str("from", from).Str("to", to).Msg("brain_breaker_transition")
}
