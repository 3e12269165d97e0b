package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/durableflow/durableflow/internal/errkind"
)

func TestRetryPolicy_FixedDelay(t *testing.T) {
	p := Fixed(3, 100*time.Millisecond)
	assert.Equal(t, time.Duration(0), p.Delay(1, nil))
	assert.Equal(t, 100*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, 100*time.Millisecond, p.Delay(3, nil))
}

func TestRetryPolicy_LinearDelay(t *testing.T) {
	p := Linear(5, 100*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, 150*time.Millisecond, p.Delay(3, nil))
	assert.Equal(t, 200*time.Millisecond, p.Delay(4, nil))
}

func TestRetryPolicy_ExponentialDelayWithCap(t *testing.T) {
	p := Exponential(6, 100*time.Millisecond, 2, 300*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, 200*time.Millisecond, p.Delay(3, nil))
	assert.Equal(t, 300*time.Millisecond, p.Delay(4, nil), "exceeds cap, must clamp")
}

func TestRetryPolicy_DefaultIsSingleAttemptNoRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	budget := NewBudget(p)
	assert.True(t, budget.CanRetry())
	assert.True(t, budget.Use())
	assert.False(t, budget.CanRetry(), "a single-attempt policy must not permit a retry")
}

func TestRetryPolicy_IsRetryableHonorsDefaultClosedSet(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsRetryable(errkind.TaskError))
	assert.True(t, p.IsRetryable(errkind.Timeout))
	assert.False(t, p.IsRetryable(errkind.Cancelled))
	assert.False(t, p.IsRetryable(errkind.ValidationError))
	assert.False(t, p.IsRetryable(errkind.CircuitOpen))
}

func TestRetryPolicy_WithRetryOnOverride(t *testing.T) {
	p := DefaultRetryPolicy().WithRetryOn(func(k errkind.Kind) bool { return k == errkind.Cancelled })
	assert.True(t, p.IsRetryable(errkind.Cancelled))
	assert.False(t, p.IsRetryable(errkind.TaskError))
}

func TestBudget_ExhaustsAfterMaxAttempts(t *testing.T) {
	budget := NewBudget(Fixed(3, 0))
	assert.True(t, budget.Use())
	assert.True(t, budget.Use())
	assert.True(t, budget.Use())
	assert.False(t, budget.Use(), "fourth attempt exceeds MaxAttempts=3")
	assert.Equal(t, 3, budget.Used())
	assert.Equal(t, 0, budget.Remaining())
}
