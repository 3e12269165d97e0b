package flow

import (
	"github.com/durableflow/durableflow/internal/graph"
)

// BranchArm is one arm of a Branch node: a predicate over the current value
// plus the sub-chain to run when it matches. A nil Predicate marks a
// default/else arm and, per spec §3 ("first matching predicate's sub-plan
// executes"), should be listed last — arms after it are unreachable.
type BranchArm[In, Out any] struct {
	// Describe labels this arm in compile-error messages; optional.
	Describe string

	// Predicate decides whether this arm matches the branch's current
	// value, given also the execution's variables (SPEC_FULL.md's
	// expr-lang/expr extension — see ExprPredicate). Nil means "always
	// matches" (the default arm).
	Predicate func(value In, variables map[string]any) bool

	// Build composes this arm's sub-chain starting from a fresh Builder[In].
	Build func(*Builder[In]) *Builder[Out]
}

// Branch appends a Branch node (spec §3/§4.1's `branch`). Every arm must
// accept the branch's current value (In) and all arms' final output types
// must unify to Out, or Compile fails with
// graph.ErrBranchTypeDivergence/ErrTypeMismatch.
func Branch[In, Out any](b *Builder[In], arms []BranchArm[In, Out]) *Builder[Out] {
	if b.err != nil {
		return &Builder[Out]{flowID: b.flowID, err: b.err}
	}

	gArms := make([]graph.Arm, 0, len(arms))
	for _, arm := range arms {
		plan, err := subPlan[In, Out](b.flowID, arm.Build)
		if err != nil {
			return &Builder[Out]{flowID: b.flowID, err: err}
		}

		var pred *graph.Predicate
		if arm.Predicate != nil {
			fn := arm.Predicate
			pred = &graph.Predicate{
				Describe: arm.Describe,
				Fn: func(value any, variables map[string]any) bool {
					typed, ok := value.(In)
					if !ok {
						return false
					}
					return fn(typed, variables)
				},
			}
		}
		gArms = append(gArms, graph.Arm{Predicate: pred, Plan: plan})
	}

	node := &graph.Node{
		Kind:      graph.KindBranch,
		InputType: inputTypeOf[In](),
		Arms:      gArms,
	}
	return &Builder[Out]{flowID: b.flowID, nodes: append(b.nodes, node)}
}
