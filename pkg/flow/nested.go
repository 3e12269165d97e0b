package flow

import (
	"github.com/durableflow/durableflow/internal/graph"
)

// Nested appends a Nested node referencing a child flow by id (spec §3's
// `Nested(flow_ref)`): "a child plan treated as an opaque node; its
// execution is a sub-execution with its own execution_id linked by parent
// pointer." The child flow must already be registered with the engine's
// Registry under flowRef by the time this plan runs — pkg/flow has no
// registry of its own to check against at compile time, so In/Out here are
// asserted by the caller to match the child flow's declared input/output.
func Nested[In, Out any](b *Builder[In], flowRef string) *Builder[Out] {
	if b.err != nil {
		return &Builder[Out]{flowID: b.flowID, err: b.err}
	}

	node := &graph.Node{
		Kind:       graph.KindNested,
		InputType:  inputTypeOf[In](),
		OutputType: inputTypeOf[Out](),
		FlowRef:    flowRef,
	}
	return &Builder[Out]{flowID: b.flowID, nodes: append(b.nodes, node)}
}
