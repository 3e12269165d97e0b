// Package engine implements C6, the scheduler/executor that drives a
// compiled graph.Plan to completion against the Storage Port. It is
// grounded on the teacher's WorkflowEngine and wave executor
// (internal/application/executor/engine.go, planner.go), generalized from
// wave-parallel edge-graph execution to the tree-shaped recursive execution
// this spec's fluent-compiled Plan requires (Step/Branch/Parallel/While/
// ForEach/Nested), since there are no "waves" over a tree — only per-node
// recursive descent with Parallel/ForEach as the sole points of concurrency.
package engine

import (
	"sync"
	"time"
)

// Status is an Execution's lifecycle status, per spec §3.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCompensating Status = "compensating"
)

// CompletedEntry is one entry of Execution.Completed.
type CompletedEntry struct {
	NodeID    string
	OutputRef string
}

// FailedEntry is one entry of Execution.Failed.
type FailedEntry struct {
	NodeID       string
	ErrorKind    string
	ErrorDetail string
}

// Execution is the runtime record spec §3 defines verbatim. It is grounded
// on the teacher's ExecutionState (internal/application/executor/state.go),
// generalized from the teacher's map[uuid.UUID]*NodeState (which does not
// preserve completion order) to the ordered Completed/Failed slices spec §3
// requires — order matters here because resume equivalence (spec §8
// property 7) and compensation (run in reverse completion order, §4.5)
// both depend on it.
type Execution struct {
	mu sync.RWMutex

	ExecutionID string
	FlowID      string
	Status      Status

	Cursor string
	Input  any

	Completed []CompletedEntry
	Failed    []FailedEntry

	Outputs   map[string]any
	Variables map[string]any
	Metadata  map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a fresh, pending Execution.
func New(executionID, flowID string, metadata map[string]string) *Execution {
	now := time.Now()
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Execution{
		ExecutionID: executionID,
		FlowID:      flowID,
		Status:      StatusPending,
		Outputs:     map[string]any{},
		Variables:   map[string]any{},
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (e *Execution) touch() {
	e.UpdatedAt = time.Now()
}

// SetStatus transitions the execution's status under lock.
func (e *Execution) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = s
	e.touch()
}

// GetStatus reads the execution's status under lock.
func (e *Execution) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

// SetCursor updates the node_id the scheduler is at or next to run.
func (e *Execution) SetCursor(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Cursor = nodeID
	e.touch()
}

// SetInput records the value a fresh Execution was started with, so a later
// Resume (which is not handed an input by its caller, per spec §4.2) can
// re-enter the advance loop against it.
func (e *Execution) SetInput(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Input = v
	e.touch()
}

// CompletedOutput reports the output recorded for nodeID if that node is
// present in Completed, letting the scheduler's root advance loop skip
// re-running a node that fully finished before a pause rather than replaying
// it — per spec §4.2 Resume, only the in-flight node is treated as READY.
func (e *Execution) CompletedOutput(nodeID string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.Completed {
		if c.NodeID == nodeID {
			v, ok := e.Outputs[nodeID]
			return v, ok
		}
	}
	return nil, false
}

// RecordOutput stores a node's output and appends a Completed entry. outputRef
// is an opaque, storage-assigned reference (here, just the node_id — output
// bytes live in Outputs directly since this implementation keeps them
// in-process rather than behind a separate blob store).
func (e *Execution) RecordOutput(nodeID string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Outputs[nodeID] = value
	e.Completed = append(e.Completed, CompletedEntry{NodeID: nodeID, OutputRef: nodeID})
	e.touch()
}

// RecordFailure appends a Failed entry for a node that exhausted retries.
func (e *Execution) RecordFailure(nodeID, errorKind, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Failed = append(e.Failed, FailedEntry{NodeID: nodeID, ErrorKind: errorKind, ErrorDetail: detail})
	e.touch()
}

// Output returns outputs[nodeID], for TaskContext's read access.
func (e *Execution) Output(nodeID string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.Outputs[nodeID]
	return v, ok
}

// Variable reads variables[key].
func (e *Execution) Variable(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.Variables[key]
	return v, ok
}

// VariablesSnapshot returns a shallow copy of variables, used to give a
// Branch/While predicate (e.g. a compiled expr-lang/expr program) a
// consistent view to evaluate against without holding the Execution lock
// for the duration of evaluation.
func (e *Execution) VariablesSnapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.Variables))
	for k, v := range e.Variables {
		out[k] = v
	}
	return out
}

// SetVariable writes variables[key], the only mutation path TaskContext
// exposes to running tasks (spec §3: "mutable by tasks via the context").
func (e *Execution) SetVariable(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Variables[key] = value
	e.touch()
}

// MergeArmVariables applies a set of per-arm variable writes collected
// during a Parallel node's execution using last-writer-wins keyed on the
// arm's declared index (spec §5), and reports a ConcurrentVariableConflict
// key if two different arms wrote the same key with different values.
func (e *Execution) MergeArmVariables(armWrites []map[string]any) (conflictKey string, hasConflict bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	written := map[string]any{}
	writerArm := map[string]int{}
	for i, writes := range armWrites {
		for k, v := range writes {
			if prevArm, ok := writerArm[k]; ok && prevArm != i {
				if !equalValue(written[k], v) {
					conflictKey = k
					hasConflict = true
				}
			}
			written[k] = v
			writerArm[k] = i
		}
	}
	for k, v := range written {
		e.Variables[k] = v
	}
	e.touch()
	return conflictKey, hasConflict
}

func equalValue(a, b any) bool {
	return a == b
}

// Clone produces a deep-enough copy for snapshotting: a new Execution value
// with its own maps/slices, safe to serialize without racing concurrent
// mutation. Grounded on the teacher's ExecutionState.Clone.
func (e *Execution) Clone() *Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c := &Execution{
		ExecutionID: e.ExecutionID,
		FlowID:      e.FlowID,
		Status:      e.Status,
		Cursor:      e.Cursor,
		Input:       e.Input,
		Outputs:     map[string]any{},
		Variables:   map[string]any{},
		Metadata:    map[string]string{},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	c.Completed = append(c.Completed, e.Completed...)
	c.Failed = append(c.Failed, e.Failed...)
	for k, v := range e.Outputs {
		c.Outputs[k] = v
	}
	for k, v := range e.Variables {
		c.Variables[k] = v
	}
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	return c
}
