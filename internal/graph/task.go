package graph

import (
	"context"
	"reflect"
	"time"

	"github.com/durableflow/durableflow/internal/schema"
)

// Context is the capability surface a running Task sees. It generalizes the
// teacher's ExecutionContext (internal/application/executor/state.go) into an
// interface so that internal/graph has no dependency on internal/engine,
// which owns the concrete implementation — engine imports graph, not the
// other way around.
type Context interface {
	context.Context

	FlowID() string
	ExecutionID() string
	NodeID() string
	Attempt() int

	Output(nodeID string) (any, bool)
	Variable(key string) (any, bool)
	SetVariable(key string, value any)
}

// Task is the erased, runtime form of pkg/flow's generic Task[In, Out]. The
// public API is generic for caller ergonomics (spec.md §9's "thread type
// parameters through the builder"); once captured at a composition call site
// it is erased to this shape, mirroring the teacher's domain.Node capability
// set {id, describe, validate, execute} generalized with an optional
// Compensate capability per spec.md §3.
type Task struct {
	TaskID string

	InputType  reflect.Type
	OutputType reflect.Type

	InputSchema  schema.Erased
	OutputSchema schema.Erased

	Execute    func(ctx Context, input any) (any, error)
	Compensate func(ctx Context, output any) error

	// Timeout is this task's per-attempt deadline (spec §4.2). Zero means
	// no deadline beyond whatever the caller's context already imposes.
	Timeout time.Duration
}

// Describe returns a short human-readable label for compile errors and logs.
func (t *Task) Describe() string {
	if t == nil {
		return "<nil task>"
	}
	return t.TaskID
}

// Compensable reports whether this task declares a compensation capability,
// used by the scheduler's compensation pass (spec.md §4.5) to decide whether
// a NodeSucceeded entry needs a matching Compensated/CompensationError event.
func (t *Task) Compensable() bool {
	return t != nil && t.Compensate != nil
}
