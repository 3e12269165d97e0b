package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("flaky", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Hour, MaxConcurrentRequests: 1})

	for i := 0; i < 3; i++ {
		err := cb.Execute("n", i+1, func() error { return errors.New("boom") })
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, cb.CurrentState())

	err := cb.Execute("n", 4, func() error { return nil })
	var ce *ErrCircuitOpen
	require.ErrorAs(t, err, &ce)
}

func TestCircuitBreaker_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	cb := NewCircuitBreaker("flaky", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Millisecond, MaxConcurrentRequests: 1})

	_ = cb.Execute("n", 1, func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(5 * time.Millisecond)

	err := cb.Execute("n", 2, func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.CurrentState(), "a single success at SuccessThreshold=1 must close the breaker")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("flaky", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Millisecond, MaxConcurrentRequests: 1})

	_ = cb.Execute("n", 1, func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	err := cb.Execute("n", 2, func() error { return errors.New("still broken") })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.CurrentState())
}

func TestRegistry_ReusesBreakerPerTaskID(t *testing.T) {
	reg := NewRegistry(DefaultCircuitBreakerConfig())
	a := reg.Get("task-a")
	b := reg.Get("task-a")
	assert.Same(t, a, b)

	c := reg.Get("task-b")
	assert.NotSame(t, a, c)
}
