// Package flow is the public, generic fluent composition API (spec §4.1,
// "Fluent Compiler"). Callers build a Plan by chaining Then/Branch/Parallel/
// While/ForEach/Nested calls against a Builder[T], then Compile it into a
// graph.Plan the engine can run. Every call is erased to internal/graph's
// untyped representation at the point it is captured, mirroring the
// teacher's own split between its fluent mbflow.go facade and the
// erased executor.NodeConfig it ultimately drives
// (_examples/smilemakc-mbflow/mbflow.go, executor.go).
//
// Go methods cannot introduce new type parameters beyond their receiver's,
// so chain operations here are free generic functions taking a *Builder[In]
// and returning a *Builder[Out], not methods on Builder.
package flow

import (
	"fmt"
	"reflect"
	"time"

	"github.com/durableflow/durableflow/internal/graph"
	"github.com/durableflow/durableflow/internal/schema"
)

// Context is the capability surface a Task sees while executing, re-exported
// from internal/graph so callers never need to import an internal package.
type Context = graph.Context

// Task is a typed, reusable unit of work, per spec §3: a stable task_id, an
// execute capability, and an optional compensation capability. Grounded on
// the teacher's executor.NodeExecutor contract, generalized from the
// teacher's single fixed NodeExecutorType enum to an arbitrary caller-typed
// In/Out pair.
type Task[In, Out any] struct {
	// TaskID must be unique within a flow (spec §4.1: "the validate
	// capability... checks that every task referenced has a unique task_id
	// within its flow").
	TaskID string

	// Execute runs the task. ctx exposes TaskContext's read/write surface
	// (spec §3).
	Execute func(ctx Context, input In) (Out, error)

	// Compensate, if set, undoes this task's effect given its prior output
	// (spec §4.5's "optional compensation capability").
	Compensate func(ctx Context, output Out) error

	// Timeout bounds one execution attempt (spec §4.2). Zero means no
	// per-task deadline beyond the caller's own context.
	Timeout time.Duration

	// InputSchema/OutputSchema are the task's C1 Schema Port schemas,
	// carried onto the erased graph.Task. The scheduler does not call them:
	// payloads are not validated against them at run time, and Execute
	// only checks that its input has type In.
	InputSchema  schema.Schema[In]
	OutputSchema schema.Schema[Out]
}

// erase converts a typed Task into the engine's runtime representation. This
// is the one place the public generic API meets internal/graph's erased
// any-based Task, mirroring the teacher's NodeToConfig/EdgeToConfig
// converters (_examples/smilemakc-mbflow/mbflow.go:163-205).
func (t Task[In, Out]) erase() *graph.Task {
	var inZero In
	var outZero Out

	gt := &graph.Task{
		TaskID:     t.TaskID,
		InputType:  reflect.TypeOf(inZero),
		OutputType: reflect.TypeOf(outZero),
		Timeout:    t.Timeout,
	}

	if t.InputSchema != nil {
		gt.InputSchema = schema.Erase[In](t.InputSchema)
	}
	if t.OutputSchema != nil {
		gt.OutputSchema = schema.Erase[Out](t.OutputSchema)
	}

	gt.Execute = func(ctx graph.Context, input any) (any, error) {
		typed, ok := input.(In)
		if !ok {
			return nil, fmt.Errorf("flow: task %q received input of type %T, want %T", t.TaskID, input, inZero)
		}
		out, err := t.Execute(ctx, typed)
		return out, err
	}

	if t.Compensate != nil {
		gt.Compensate = func(ctx graph.Context, output any) error {
			typed, ok := output.(Out)
			if !ok {
				return fmt.Errorf("flow: compensation for task %q received output of type %T, want %T", t.TaskID, output, outZero)
			}
			return t.Compensate(ctx, typed)
		}
	}

	return gt
}

// Func wraps a plain function as a Task with no compensation and no schema,
// the common case for a pure transformation step.
func Func[In, Out any](taskID string, fn func(ctx Context, input In) (Out, error)) Task[In, Out] {
	return Task[In, Out]{TaskID: taskID, Execute: fn}
}
