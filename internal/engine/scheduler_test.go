package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableflow/durableflow/internal/graph"
	"github.com/durableflow/durableflow/internal/logging"
	"github.com/durableflow/durableflow/internal/policy"
	"github.com/durableflow/durableflow/internal/storage/memstore"
)

var (
	intType      = reflect.TypeOf(0)
	stringType   = reflect.TypeOf("")
	intSliceType = reflect.TypeOf([]int{})
)

func newTestScheduler(pol Policies) (*Scheduler, *Registry) {
	reg := NewRegistry()
	sched := NewScheduler(memstore.New(), reg, pol, logging.New("error", nil), "test")
	return sched, reg
}

// intStepPlan builds a single-node int->int plan.
func intStepPlan(t *testing.T, id string, fn func(int) (int, error)) *graph.Plan {
	t.Helper()
	node := &graph.Node{
		Kind:       graph.KindStep,
		InputType:  intType,
		OutputType: intType,
		Task: &graph.Task{
			TaskID: id,
			Execute: func(ctx graph.Context, input any) (any, error) {
				v, _ := input.(int)
				out, err := fn(v)
				return out, err
			},
		},
	}
	plan, err := graph.NewPlan(id, []*graph.Node{node})
	require.NoError(t, err)
	return plan
}

// S1 — sequential doubling.
func TestScheduler_SequentialDoubling(t *testing.T) {
	plan := intStepPlan(t, "double", func(v int) (int, error) { return v * 2, nil })
	sched, reg := newTestScheduler(DefaultPolicies())
	reg.Register("double-flow", plan)

	exec := New(uuid.NewString(), "double-flow", nil)
	out, err := sched.Execute(context.Background(), plan, exec, 21, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, StatusCompleted, exec.GetStatus())
}

// S2 — branch low/high.
func TestScheduler_BranchSelectsMatchingArm(t *testing.T) {
	armHigh, err := graph.NewPlan("high", []*graph.Node{{
		Kind: graph.KindStep, InputType: intType, OutputType: stringType,
		Task: &graph.Task{TaskID: "tagHigh", Execute: func(ctx graph.Context, input any) (any, error) {
			return "high", nil
		}},
	}})
	require.NoError(t, err)
	armLow, err := graph.NewPlan("low", []*graph.Node{{
		Kind: graph.KindStep, InputType: intType, OutputType: stringType,
		Task: &graph.Task{TaskID: "tagLow", Execute: func(ctx graph.Context, input any) (any, error) {
			return "low", nil
		}},
	}})
	require.NoError(t, err)

	branch := &graph.Node{
		Kind:      graph.KindBranch,
		InputType: intType,
		Arms: []graph.Arm{
			{Predicate: &graph.Predicate{Fn: func(v any, _ map[string]any) bool { return v.(int) > 10 }}, Plan: armHigh},
			{Plan: armLow},
		},
	}
	plan, err := graph.NewPlan("branch-flow", []*graph.Node{branch})
	require.NoError(t, err)

	sched, reg := newTestScheduler(DefaultPolicies())
	reg.Register("branch-flow", plan)
	exec := New(uuid.NewString(), "branch-flow", nil)

	out, err := sched.Execute(context.Background(), plan, exec, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, "low", out)
}

// S3 — parallel fan-in preserves declared order regardless of completion order.
func TestScheduler_ParallelPreservesDeclaredOrder(t *testing.T) {
	addDelayed := func(taskID string, n int, delay time.Duration) *graph.Plan {
		p, err := graph.NewPlan(taskID, []*graph.Node{{
			Kind: graph.KindStep, InputType: intType, OutputType: intType,
			Task: &graph.Task{TaskID: taskID, Execute: func(ctx graph.Context, input any) (any, error) {
				time.Sleep(delay)
				return input.(int) + n, nil
			}},
		}})
		require.NoError(t, err)
		return p
	}

	// addThree finishes first despite being declared last.
	parallel := &graph.Node{
		Kind:       graph.KindParallel,
		InputType:  intType,
		OutputType: intSliceType,
		Plans: []*graph.Plan{
			addDelayed("addOne", 1, 15*time.Millisecond),
			addDelayed("addTwo", 2, 10*time.Millisecond),
			addDelayed("addThree", 3, 0),
		},
	}
	plan, err := graph.NewPlan("parallel-flow", []*graph.Node{parallel})
	require.NoError(t, err)

	sched, reg := newTestScheduler(DefaultPolicies())
	reg.Register("parallel-flow", plan)
	exec := New(uuid.NewString(), "parallel-flow", nil)

	out, err := sched.Execute(context.Background(), plan, exec, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{11, 12, 13}, out)
}

// Retry budget: a task that always fails consumes every attempt then fails
// terminally with the underlying error kind preserved.
func TestScheduler_RetryBudgetExhausted(t *testing.T) {
	attempts := 0
	plan := intStepPlan(t, "always-fails", func(int) (int, error) {
		attempts++
		return 0, errors.New("boom")
	})

	pol := DefaultPolicies()
	pol.Retry[""] = policy.Fixed(3, time.Millisecond)
	sched, reg := newTestScheduler(pol)
	reg.Register("retry-flow", plan)
	exec := New(uuid.NewString(), "retry-flow", nil)

	_, err := sched.Execute(context.Background(), plan, exec, 1, nil)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StatusFailed, exec.GetStatus())
	assert.Len(t, exec.Failed, 1)
}

// Compensation runs in reverse completion order when a later step fails.
func TestScheduler_CompensationRunsInReverseOrder(t *testing.T) {
	var compensated []string

	compensable := func(id string) *graph.Node {
		return &graph.Node{
			Kind: graph.KindStep, InputType: intType, OutputType: intType,
			Task: &graph.Task{
				TaskID: id,
				Execute: func(ctx graph.Context, input any) (any, error) {
					return input.(int), nil
				},
				Compensate: func(ctx graph.Context, output any) error {
					compensated = append(compensated, id)
					return nil
				},
			},
		}
	}
	failing := &graph.Node{
		Kind: graph.KindStep, InputType: intType, OutputType: intType,
		Task: &graph.Task{TaskID: "fails", Execute: func(ctx graph.Context, input any) (any, error) {
			return nil, errors.New("boom")
		}},
	}

	plan, err := graph.NewPlan("compensation-flow", []*graph.Node{compensable("first"), compensable("second"), failing})
	require.NoError(t, err)

	sched, reg := newTestScheduler(DefaultPolicies())
	reg.Register("compensation-flow", plan)
	exec := New(uuid.NewString(), "compensation-flow", nil)

	_, err = sched.Execute(context.Background(), plan, exec, 1, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, compensated)
}
