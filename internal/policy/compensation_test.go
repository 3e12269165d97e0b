package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/durableflow/durableflow/internal/graph"
)

// fakeContext is a minimal graph.Context for exercising RunCompensation
// without depending on internal/engine (which imports policy).
type fakeContext struct {
	context.Context
}

func (fakeContext) FlowID() string                      { return "test-flow" }
func (fakeContext) ExecutionID() string                 { return "test-exec" }
func (fakeContext) NodeID() string                       { return "" }
func (fakeContext) Attempt() int                         { return 0 }
func (fakeContext) Output(string) (any, bool)            { return nil, false }
func (fakeContext) Variable(string) (any, bool)          { return nil, false }
func (fakeContext) SetVariable(string, any)               {}

func newFakeContext() graph.Context {
	return fakeContext{Context: context.Background()}
}

func compensableNode(id string, compensate func(ctx graph.Context, output any) error) CompletedNode {
	return CompletedNode{
		NodeID: id,
		Task:   &graph.Task{TaskID: id, Compensate: compensate},
		Output: id,
	}
}

func TestRunCompensation_RunsInReverseCompletionOrder(t *testing.T) {
	var order []string
	record := func(id string) func(graph.Context, any) error {
		return func(graph.Context, any) error {
			order = append(order, id)
			return nil
		}
	}

	completed := []CompletedNode{
		compensableNode("first", record("first")),
		compensableNode("second", record("second")),
		compensableNode("third", record("third")),
	}

	results := RunCompensation(newFakeContext(), completed)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.False(t, r.Skipped)
	}
}

func TestRunCompensation_SkipsNodesWithoutCompensate(t *testing.T) {
	completed := []CompletedNode{
		{NodeID: "no-undo", Task: &graph.Task{TaskID: "no-undo"}},
	}

	results := RunCompensation(newFakeContext(), completed)
	assert.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
}

func TestRunCompensation_RecordsFailureButContinuesUndoingOthers(t *testing.T) {
	var order []string
	completed := []CompletedNode{
		compensableNode("first", func(graph.Context, any) error {
			order = append(order, "first")
			return nil
		}),
		compensableNode("second", func(graph.Context, any) error {
			order = append(order, "second")
			return errors.New("undo failed")
		}),
	}

	results := RunCompensation(newFakeContext(), completed)
	assert.Equal(t, []string{"second", "first"}, order, "a failing compensation must not stop earlier nodes from being undone")
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
