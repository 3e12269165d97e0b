package flow

import (
	"reflect"

	"github.com/durableflow/durableflow/internal/graph"
)

// Builder accumulates graph.Nodes for a Plan whose current tail value is
// type T. It is generic purely for call-site ergonomics (spec §4.1); every
// node it holds is already erased to *graph.Node.
//
// Compile errors are deferred rather than threaded through every chain
// call's return signature: a failing Then/Branch/Parallel/… call freezes
// err and every subsequent call becomes a no-op passthrough, so callers can
// keep chaining and only check the error once, at Compile. This mirrors the
// teacher's own tolerance of partial construction followed by a single
// validation pass (spec §4.1: "The validate capability run at registration
// time").
type Builder[T any] struct {
	flowID string
	nodes  []*graph.Node
	err    error
}

// New starts a fresh Builder for a flow identified by flowID. T is the
// input type of the first node appended to it.
func New[T any](flowID string) *Builder[T] {
	return &Builder[T]{flowID: flowID}
}

// Compile finalizes the Builder into an immutable graph.Plan, running every
// compile-time check spec §4.1/§4.3 requires (type compatibility, branch
// output unification, loop invariant, unique task_id, node_id assignment).
func (b *Builder[T]) Compile() (*graph.Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	return graph.NewPlan(b.flowID, b.nodes)
}

func inputTypeOf[T any]() reflect.Type {
	return reflect.TypeOf(*new(T))
}

// Then appends a Step node running t, advancing the Builder's tail type
// from In to Out (spec §4.1's `then`). It is a free function, not a method
// on Builder, because Go forbids a method from introducing a type
// parameter the receiver doesn't already have.
func Then[In, Out any](b *Builder[In], t Task[In, Out]) *Builder[Out] {
	if b.err != nil {
		return &Builder[Out]{flowID: b.flowID, err: b.err}
	}
	node := &graph.Node{
		Kind:       graph.KindStep,
		Task:       t.erase(),
		InputType:  inputTypeOf[In](),
		OutputType: inputTypeOf[Out](),
	}
	return &Builder[Out]{flowID: b.flowID, nodes: append(b.nodes, node)}
}

// subPlan compiles a side-chain (a Branch arm, a Parallel arm, a While/
// ForEach body) that was built by calling fn against a fresh Builder[In]
// scoped to the same flow_id. It returns the compiled graph.Plan plus any
// error encountered either while building or while compiling it.
func subPlan[In, Out any](flowID string, fn func(*Builder[In]) *Builder[Out]) (*graph.Plan, error) {
	sub := fn(New[In](flowID))
	return sub.Compile()
}
