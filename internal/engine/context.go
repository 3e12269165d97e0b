package engine

import (
	"context"
	"sync"

	"github.com/durableflow/durableflow/internal/graph"
)

// varOverlay gives one arm of a Parallel/ForEach node an isolated view of
// `variables`: reads fall through to the parent overlay (or, at the root,
// to the shared Execution) but writes stay local until the scheduler merges
// every arm's overlay back with last-writer-wins-by-arm-index once all arms
// have settled (spec §5: "concurrent arms... must treat variables as
// effectively local"). Nested Parallel/ForEach get their own overlay chained
// off the enclosing one, so reads still see outer writes.
type varOverlay struct {
	parent *varOverlay
	exec   *Execution

	mu   sync.Mutex
	data map[string]any
}

func newVarOverlay(parent *varOverlay, exec *Execution) *varOverlay {
	return &varOverlay{parent: parent, exec: exec, data: map[string]any{}}
}

func (o *varOverlay) get(key string) (any, bool) {
	o.mu.Lock()
	v, ok := o.data[key]
	o.mu.Unlock()
	if ok {
		return v, true
	}
	if o.parent != nil {
		return o.parent.get(key)
	}
	return o.exec.Variable(key)
}

func (o *varOverlay) set(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[key] = value
}

// ownWrites returns a copy of exactly what was written through this
// overlay (not its parent's), for the scheduler to hand to
// Execution.MergeArmVariables.
func (o *varOverlay) ownWrites() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.data))
	for k, v := range o.data {
		out[k] = v
	}
	return out
}

// taskContext implements graph.Context for one task attempt, grounded on
// the teacher's ExecutionContext (internal/application/executor/state.go):
// a context.Context plus accessors into the shared Execution state.
type taskContext struct {
	context.Context

	flowID      string
	executionID string
	nodeID      string
	attempt     int
	exec        *Execution
	overlay     *varOverlay // nil outside any Parallel/ForEach arm
}

func newTaskContext(ctx context.Context, exec *Execution, nodeID string, attempt int, overlay *varOverlay) *taskContext {
	return &taskContext{
		Context:     ctx,
		flowID:      exec.FlowID,
		executionID: exec.ExecutionID,
		nodeID:      nodeID,
		attempt:     attempt,
		exec:        exec,
		overlay:     overlay,
	}
}

func (c *taskContext) FlowID() string      { return c.flowID }
func (c *taskContext) ExecutionID() string { return c.executionID }
func (c *taskContext) NodeID() string      { return c.nodeID }
func (c *taskContext) Attempt() int        { return c.attempt }

func (c *taskContext) Output(nodeID string) (any, bool) {
	return c.exec.Output(nodeID)
}

func (c *taskContext) Variable(key string) (any, bool) {
	if c.overlay != nil {
		return c.overlay.get(key)
	}
	return c.exec.Variable(key)
}

func (c *taskContext) SetVariable(key string, value any) {
	if c.overlay != nil {
		c.overlay.set(key, value)
		return
	}
	c.exec.SetVariable(key, value)
}

var _ graph.Context = (*taskContext)(nil)
