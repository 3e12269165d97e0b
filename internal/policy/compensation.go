package policy

import (
	"fmt"

	"github.com/durableflow/durableflow/internal/errkind"
	"github.com/durableflow/durableflow/internal/graph"
)

// CompletedNode records one successfully completed node, in completion
// order, for the compensation pass to walk in reverse.
type CompletedNode struct {
	NodeID string
	Task   *graph.Task
	Output any
}

// CompensationResult is the outcome of compensating a single node.
type CompensationResult struct {
	NodeID  string
	Skipped bool // task declared no Compensate capability
	Err     error
}

// RunCompensation invokes, in reverse order of completion, the Compensate
// capability of every completed node that declares one — exactly spec
// §4.5's rule. A compensation failure is recorded but does not itself
// trigger further compensation (no recursive undo), matching "Compensation
// failures are logged but do not themselves trigger further compensation".
//
// Grounded on the teacher's CompensationManager.ExecuteCompensations
// (error_strategies.go), which also walks its registered actions LIFO and
// collects errors rather than aborting on the first one.
func RunCompensation(ctx graph.Context, completed []CompletedNode) []CompensationResult {
	results := make([]CompensationResult, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		n := completed[i]
		if !n.Task.Compensable() {
			results = append(results, CompensationResult{NodeID: n.NodeID, Skipped: true})
			continue
		}
		if err := n.Task.Compensate(ctx, n.Output); err != nil {
			results = append(results, CompensationResult{
				NodeID: n.NodeID,
				Err: errkind.New(errkind.CompensationError, n.NodeID, 0,
					fmt.Sprintf("compensation failed for %s", n.NodeID), err),
			})
			continue
		}
		results = append(results, CompensationResult{NodeID: n.NodeID})
	}
	return results
}
