package flow

import (
	"reflect"

	"github.com/durableflow/durableflow/internal/graph"
)

// While appends a While node (spec §3/§4.1's `while_`): body re-executes so
// long as predicate(current value) holds, and the node's output is the
// value at the first failing evaluation. Compile enforces the loop
// invariant that body's output type equals its input type — both are T
// here since a Go generic can't otherwise express "body preserves its own
// type," which is exactly what the invariant requires.
func While[T any](b *Builder[T], describe string, predicate func(value T, variables map[string]any) bool, body func(*Builder[T]) *Builder[T]) *Builder[T] {
	if b.err != nil {
		return &Builder[T]{flowID: b.flowID, err: b.err}
	}

	plan, err := subPlan[T, T](b.flowID, body)
	if err != nil {
		return &Builder[T]{flowID: b.flowID, err: err}
	}

	node := &graph.Node{
		Kind:       graph.KindWhile,
		InputType:  inputTypeOf[T](),
		OutputType: inputTypeOf[T](),
		Predicate: &graph.Predicate{
			Describe: describe,
			Fn: func(value any, variables map[string]any) bool {
				typed, ok := value.(T)
				if !ok {
					return false
				}
				return predicate(typed, variables)
			},
		},
		Body: plan,
	}
	return &Builder[T]{flowID: b.flowID, nodes: append(b.nodes, node)}
}

// ForEach appends a ForEach node (spec §3/§4.1's `for_each`): the current
// value must be a sequence of Elem, body runs once per element bounded by
// concurrency, and the node's output is the ordered sequence of
// per-element outputs. A positive entry for this node in the scheduler's
// Policies.ForEachConcurrency takes precedence; otherwise a positive
// concurrency here is used, and 0 or negative means 1 (spec §9 Open
// Question (a)).
func ForEach[Elem, Out any](b *Builder[[]Elem], concurrency int, body func(*Builder[Elem]) *Builder[Out]) *Builder[[]Out] {
	if b.err != nil {
		return &Builder[[]Out]{flowID: b.flowID, err: b.err}
	}

	plan, err := subPlan[Elem, Out](b.flowID, body)
	if err != nil {
		return &Builder[[]Out]{flowID: b.flowID, err: err}
	}

	node := &graph.Node{
		Kind:        graph.KindForEach,
		InputType:   inputTypeOf[[]Elem](),
		OutputType:  reflect.TypeOf(*new([]Out)),
		Body:        plan,
		Concurrency: concurrency,
	}
	return &Builder[[]Out]{flowID: b.flowID, nodes: append(b.nodes, node)}
}
