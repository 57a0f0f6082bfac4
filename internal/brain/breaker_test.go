package brain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedBreaker(threshold int, coolDown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewCircuitBreaker(threshold, coolDown, WithClock(clock.Now)), clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newClockedBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
	}

	err := cb.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb, _ := newClockedBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.NoError(t, cb.Allow(), "failures must be consecutive to open")
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	cb, clock := newClockedBreaker(2, 30*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clock.Advance(time.Second)
	assert.NoError(t, cb.Allow(), "first call after cool-down is the probe")
	assert.Equal(t, BreakerHalfOpen, cb.State())

	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "only one probe at a time")
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	cb, clock := newClockedBreaker(2, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Second)

	require.NoError(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, BreakerClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb, clock := newClockedBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(time.Second)

	require.NoError(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clock.Advance(time.Second)
	assert.NoError(t, cb.Allow(), "reopened breaker waits a fresh cool-down")
}

func TestCircuitBreaker_ResetAndTransitions(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(1, time.Minute, WithStateChange(func(from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	assert.Equal(t, DefaultFailureThreshold, cb.threshold)
	assert.Equal(t, DefaultCoolDown, cb.coolDown)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cb.Allow() != nil {
				return
			}
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
		}(i)
	}
	wg.Wait()
	_ = cb.State()
}

func TestFailsafeBreaker_OpensAndFailsFast(t *testing.T) {
	fb := NewFailsafeBreaker(2, 50*time.Millisecond)
	assert.Equal(t, BreakerClosed, fb.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, fb.Allow())
		fb.RecordFailure()
	}
	assert.Equal(t, BreakerOpen, fb.State())
	assert.ErrorIs(t, fb.Allow(), ErrCircuitOpen)

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, fb.Allow())
	fb.RecordSuccess()
	assert.Equal(t, BreakerClosed, fb.State())
}

func TestBreakerImplementations(t *testing.T) {
	var _ Breaker = (*CircuitBreaker)(nil)
	var _ Breaker = (*FailsafeBreaker)(nil)
}
