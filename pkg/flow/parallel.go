package flow

import (
	"reflect"

	"github.com/durableflow/durableflow/internal/graph"
)

// Parallel appends a Parallel node (spec §3/§4.1's `parallel`): every arm
// runs concurrently against the same In value, and the node's output is the
// ordered list of arm outputs regardless of completion order (spec §4.2,
// testable property 4). Arms are required to share an Out type — the
// source spec's "fixed-length tuple/array" of possibly-heterogeneous arm
// outputs has no natural expression as a single Go generic return type, so
// this API asks for a homogeneous []Out instead (documented as a deliberate
// simplification in DESIGN.md); a caller needing heterogeneous arms can
// still get there by having each arm produce a shared sum/union Out type.
func Parallel[In, Out any](b *Builder[In], arms []func(*Builder[In]) *Builder[Out]) *Builder[[]Out] {
	if b.err != nil {
		return &Builder[[]Out]{flowID: b.flowID, err: b.err}
	}

	plans := make([]*graph.Plan, 0, len(arms))
	for _, build := range arms {
		plan, err := subPlan[In, Out](b.flowID, build)
		if err != nil {
			return &Builder[[]Out]{flowID: b.flowID, err: err}
		}
		plans = append(plans, plan)
	}

	node := &graph.Node{
		Kind:       graph.KindParallel,
		InputType:  inputTypeOf[In](),
		OutputType: reflect.TypeOf(*new([]Out)),
		Plans:      plans,
	}
	return &Builder[[]Out]{flowID: b.flowID, nodes: append(b.nodes, node)}
}
