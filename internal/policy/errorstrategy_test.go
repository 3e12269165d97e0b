package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailFastStrategy_FailsOnFirstError(t *testing.T) {
	s := NewErrorStrategy(FailFast, 3, 0)
	s.Record(ArmOutcome{Index: 0})
	assert.False(t, s.Failed())
	assert.True(t, s.ShouldContinue())

	s.Record(ArmOutcome{Index: 1, Err: errors.New("boom")})
	assert.True(t, s.Failed())
	assert.False(t, s.ShouldContinue())
}

func TestContinueOnErrorStrategy_NeverStopsWaiting(t *testing.T) {
	s := NewErrorStrategy(ContinueOnError, 3, 0)
	s.Record(ArmOutcome{Index: 0, Err: errors.New("boom")})
	s.Record(ArmOutcome{Index: 1, Err: errors.New("also boom")})
	assert.True(t, s.Failed())
	assert.True(t, s.ShouldContinue())
	assert.Len(t, s.Errors(), 2)
}

func TestBestEffortStrategy_NeverFails(t *testing.T) {
	s := NewErrorStrategy(BestEffort, 3, 0)
	s.Record(ArmOutcome{Index: 0, Err: errors.New("boom")})
	s.Record(ArmOutcome{Index: 1})
	assert.False(t, s.Failed())
	assert.True(t, s.ShouldContinue())
	assert.Len(t, s.Errors(), 1)
}

func TestRequireNStrategy_SucceedsOnceThresholdMet(t *testing.T) {
	s := NewErrorStrategy(RequireN, 3, 2)
	s.Record(ArmOutcome{Index: 0, Err: errors.New("boom")})
	assert.False(t, s.Failed(), "one failure out of three arms still leaves two that can meet minRequired=2")
	assert.True(t, s.ShouldContinue())

	s.Record(ArmOutcome{Index: 1})
	s.Record(ArmOutcome{Index: 2})
	assert.False(t, s.Failed())
}

func TestRequireNStrategy_FailsEarlyOnceThresholdUnreachable(t *testing.T) {
	s := NewErrorStrategy(RequireN, 3, 2)
	s.Record(ArmOutcome{Index: 0, Err: errors.New("boom")})
	s.Record(ArmOutcome{Index: 1, Err: errors.New("boom")})
	assert.True(t, s.Failed(), "two failures out of three arms means at most one can succeed, below minRequired=2")
	assert.False(t, s.ShouldContinue())
}
