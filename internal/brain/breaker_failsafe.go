package brain

import (
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// FailsafeBreaker adapts a failsafe-go circuit breaker to Breaker.
type FailsafeBreaker struct {
	cb circuitbreaker.CircuitBreaker[any]
}

// NewFailsafeBreaker builds a count-based breaker with the same closed,
// open and half-open semantics as CircuitBreaker: threshold consecutive
// failures open it, and one successful probe after coolDown closes it.
func NewFailsafeBreaker(threshold int, coolDown time.Duration) *FailsafeBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(uint(threshold)).
		WithSuccessThreshold(1).
		WithDelay(coolDown).
		OnStateChanged(func(ev circuitbreaker.StateChangedEvent) {
			logBreakerTransition(failsafeStateName(ev.OldState), failsafeStateName(ev.NewState))
		}).
		Build()
	return &FailsafeBreaker{cb: cb}
}

func (f *FailsafeBreaker) Allow() error {
	if !f.cb.TryAcquirePermit() {
		return ErrCircuitOpen
	}
	return nil
}

func (f *FailsafeBreaker) RecordSuccess() { f.cb.RecordSuccess() }

func (f *FailsafeBreaker) RecordFailure() { f.cb.RecordFailure() }

func (f *FailsafeBreaker) State() BreakerState {
	switch f.cb.State() {
	case circuitbreaker.OpenState:
		return BreakerOpen
	case circuitbreaker.HalfOpenState:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

func failsafeStateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return BreakerOpen.String()
	case circuitbreaker.HalfOpenState:
		return BreakerHalfOpen.String()
	default:
		return BreakerClosed.String()
	}
}
