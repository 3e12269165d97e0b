package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/durableflow/durableflow/internal/errkind"
	"github.com/durableflow/durableflow/internal/eventlog"
	"github.com/durableflow/durableflow/internal/graph"
	"github.com/durableflow/durableflow/internal/policy"
	"github.com/durableflow/durableflow/internal/storage"
)

// Registry resolves a Nested node's flow_ref to a compiled Plan, per spec
// §3 ("Nested(flow_ref) — a child plan treated as an opaque node").
// Grounded on the teacher's design note (spec §9, "global registry of
// flows... an explicit registry object passed to the server").
type Registry struct {
	mu    sync.RWMutex
	plans map[string]*graph.Plan
}

// NewRegistry creates an empty flow Registry.
func NewRegistry() *Registry {
	return &Registry{plans: map[string]*graph.Plan{}}
}

// Register associates flowID with plan, overwriting any previous entry.
func (r *Registry) Register(flowID string, plan *graph.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[flowID] = plan
}

// Lookup resolves flowID to its Plan.
func (r *Registry) Lookup(flowID string) (*graph.Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[flowID]
	return p, ok
}

// Scheduler drives a (Plan, Execution) pair to a terminal status, per spec
// §4.2. It is grounded on the teacher's WorkflowEngine
// (internal/application/executor/engine.go): same event-log-then-snapshot
// persistence-per-transition discipline, same retry/circuit-breaker/
// compensation wiring, generalized to tree-shaped recursive execution.
type Scheduler struct {
	Store     storage.Storage
	Registry  *Registry
	Breakers  *policy.Registry
	Logger    zerolog.Logger
	Policies  Policies
	OwnerName string
}

// NewScheduler builds a Scheduler with the given collaborators. owner
// identifies this scheduler instance for lease ownership (spec §4.6).
func NewScheduler(store storage.Storage, reg *Registry, pol Policies, logger zerolog.Logger, owner string) *Scheduler {
	return &Scheduler{
		Store:     store,
		Registry:  reg,
		Breakers:  policy.NewRegistry(policy.DefaultCircuitBreakerConfig()),
		Logger:    logger,
		Policies:  pol,
		OwnerName: owner,
	}
}

// runState carries the per-Execute-call collaborators that every recursive
// runPlan/runNode call needs, so they don't have to be threaded as
// individual parameters through every recursive call.
type runState struct {
	ctx     context.Context
	pauseCh <-chan struct{}
	plan    *graph.Plan
	exec    *Execution
	overlay *varOverlay // nil at top level; set while inside a Parallel/ForEach arm
}

// withOverlay returns a copy of rs scoped to a fresh child overlay, used
// when entering one arm of a Parallel/ForEach node.
func (rs *runState) withOverlay(o *varOverlay) *runState {
	child := *rs
	child.overlay = o
	return &child
}

// pauseRequested reports whether a pause was actually signaled via pauseCh —
// distinct from the context simply being done, which can happen for reasons
// that have nothing to do with pause (an externally canceled parent ctx, a
// task's own Cancelled-kind error). Spec §7: "execution status becomes
// paused if pause was requested, else failed" turns on this distinction, not
// on ctx.Err() alone.
func (s *Scheduler) pauseRequested(rs *runState) bool {
	select {
	case <-rs.pauseCh:
		return true
	default:
		return false
	}
}

// Execute starts a fresh Execution (status Pending) and drives it to a
// terminal status, implementing the advance loop of spec §4.2 end to end:
// lease acquisition, sequential/structural node dispatch, retry, circuit
// breaker, snapshot-per-transition, and compensation on terminal failure.
func (s *Scheduler) Execute(ctx context.Context, plan *graph.Plan, exec *Execution, input any, pauseCh <-chan struct{}) (any, error) {
	token, err := s.Store.AcquireLease(ctx, exec.ExecutionID, s.OwnerName, s.Policies.LeaseTTL)
	if err != nil {
		return nil, errkind.New(errkind.LeaseLost, "", 0, "failed to acquire lease", err)
	}
	defer s.Store.ReleaseLease(ctx, token)

	if exec.GetStatus() == StatusPending {
		exec.SetInput(input)
		exec.SetStatus(StatusRunning)
		s.appendEvent(ctx, exec, eventlog.ExecutionStarted, eventlog.ExecutionStartedData{FlowID: exec.FlowID})
		s.snapshot(ctx, exec)
	}

	return s.drive(ctx, plan, exec, input, pauseCh)
}

// Resume re-hydrates an execution from its latest snapshot and re-enters the
// advance loop (spec §4.2 Resume: "open a lease on the execution, load the
// latest snapshot, reconstruct the cursor, and enter the advance loop").
// Nodes already present in exec.Completed are skipped in runPlanFrom in
// favor of their recorded output; only the node that was in-flight when the
// execution was paused is re-entered, and it runs in full rather than
// resuming partway through — tasks are idempotent-across-attempts from the
// engine's perspective, so this satisfies resume equivalence (spec §8
// property 7) without needing finer-grained progress tracking.
func (s *Scheduler) Resume(ctx context.Context, plan *graph.Plan, executionID string, pauseCh <-chan struct{}) (any, error) {
	snap, err := s.Store.LatestSnapshot(ctx, executionID)
	if err != nil {
		return nil, errkind.New(errkind.StorageError, "", 0, "failed to load snapshot for resume", err)
	}
	exec, err := UnmarshalSnapshot(snap.Blob)
	if err != nil {
		return nil, errkind.New(errkind.StorageError, "", 0, "failed to unmarshal snapshot for resume", err)
	}

	token, err := s.Store.AcquireLease(ctx, exec.ExecutionID, s.OwnerName, s.Policies.LeaseTTL)
	if err != nil {
		return nil, errkind.New(errkind.LeaseLost, "", 0, "failed to acquire lease", err)
	}
	defer s.Store.ReleaseLease(ctx, token)

	exec.SetStatus(StatusRunning)
	s.appendEvent(ctx, exec, eventlog.Resumed, eventlog.ResumedData{Owner: s.OwnerName})
	s.snapshot(ctx, exec)

	return s.drive(ctx, plan, exec, exec.Input, pauseCh)
}

// drive runs exec through plan from its current state — fresh or resumed —
// to a terminal status.
func (s *Scheduler) drive(ctx context.Context, plan *graph.Plan, exec *Execution, input any, pauseCh <-chan struct{}) (any, error) {
	rs := &runState{ctx: ctx, pauseCh: pauseCh, plan: plan, exec: exec}

	output, err := s.runPlanFrom(rs, plan, input, true)

	if err != nil {
		if isPauseSignal(err) {
			exec.SetStatus(StatusPaused)
			s.appendEvent(ctx, exec, eventlog.Paused, eventlog.PausedData{Reason: "pause requested"})
			s.snapshot(ctx, exec)
			return nil, err
		}

		exec.SetStatus(StatusCompensating)
		s.runCompensation(ctx, plan, exec)
		exec.SetStatus(StatusFailed)
		s.appendEvent(ctx, exec, eventlog.ExecutionFailed, eventlog.ExecutionFailedData{ErrorKind: errkind.Of(err)})
		s.snapshot(ctx, exec)
		return nil, err
	}

	exec.SetStatus(StatusCompleted)
	s.appendEvent(ctx, exec, eventlog.ExecutionCompleted, eventlog.ExecutionCompletedData{FinalOutputRef: "final"})
	s.snapshot(ctx, exec)
	return output, nil
}

// pauseSignal is the sentinel error runPlan/runNode return when they detect
// a pause request, distinguishing it from an ordinary task Cancelled error
// (which, per spec §7, only becomes `paused` "if pause was requested, else
// failed").
type pauseSignal struct{}

func (pauseSignal) Error() string { return "execution paused" }

func isPauseSignal(err error) bool {
	_, ok := err.(pauseSignal)
	return ok
}

// runPlan executes plan's nodes in sequence, threading each node's output as
// the next node's input, per spec §4.2's Step input-binding rule. It is the
// entry point sub-plans (branch arms, parallel/forEach bodies, while bodies)
// use: those always run in full from the top, since per spec §4.2 Resume the
// node that wraps them is itself the unit of "in-flight, not partially
// executed" — only the outermost plan (see runPlanFrom's root parameter)
// tracks and skips already-completed nodes across a pause/resume boundary.
func (s *Scheduler) runPlan(rs *runState, plan *graph.Plan, input any) (any, error) {
	return s.runPlanFrom(rs, plan, input, false)
}

// runPlanFrom is runPlan generalized with root, the flag distinguishing the
// plan Execute/Resume was directly handed from any nested sub-plan. When
// root is true, a node already recorded in rs.exec.Completed (from a
// snapshot predating a pause) is skipped and its recorded output reused in
// place of re-running it, and Cursor is advanced to track resume position —
// neither applies to nested sub-plans, which always run in full.
func (s *Scheduler) runPlanFrom(rs *runState, plan *graph.Plan, input any, root bool) (any, error) {
	value := input
	for _, node := range plan.Nodes {
		if root {
			if out, ok := rs.exec.CompletedOutput(node.ID); ok {
				value = out
				continue
			}
		}

		if s.pauseRequested(rs) {
			return nil, pauseSignal{}
		}
		if rs.ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, node.ID, 0, "execution context canceled", rs.ctx.Err())
		}

		if root {
			rs.exec.SetCursor(node.ID)
		}
		out, err := s.runNode(rs, node, value)
		if err != nil {
			return nil, err
		}

		if root && node.Kind != graph.KindStep {
			// Step nodes record their own completion inside runStep; other
			// kinds only reach a recorded, skippable state once their whole
			// sub-tree has finished.
			rs.exec.RecordOutput(node.ID, out)
			s.snapshot(rs.ctx, rs.exec)
		}

		value = out
	}
	return value, nil
}

// runNode dispatches on node.Kind, implementing each operator's semantics
// from spec §4.1/§4.2.
func (s *Scheduler) runNode(rs *runState, node *graph.Node, input any) (any, error) {
	switch node.Kind {
	case graph.KindStep:
		return s.runStep(rs, node, input)
	case graph.KindBranch:
		return s.runBranch(rs, node, input)
	case graph.KindParallel:
		return s.runParallel(rs, node, input)
	case graph.KindWhile:
		return s.runWhile(rs, node, input)
	case graph.KindForEach:
		return s.runForEach(rs, node, input)
	case graph.KindNested:
		return s.runNested(rs, node, input)
	default:
		return nil, errkind.New(errkind.TaskError, node.ID, 0, "unknown node kind", nil)
	}
}

// runStep runs one task through its retry/circuit-breaker-wrapped attempt
// loop, step 2-4 of spec §4.2's advance loop.
func (s *Scheduler) runStep(rs *runState, node *graph.Node, input any) (any, error) {
	task := node.Task
	rp := s.Policies.retryFor(task.TaskID)
	budget := policy.NewBudget(rp)
	cb := s.Breakers.GetWithConfig(task.TaskID, s.Policies.circuitBreakerFor(task.TaskID))

	var lastErr error
	for attempt := 1; ; attempt++ {
		if s.pauseRequested(rs) {
			return nil, pauseSignal{}
		}
		if rs.ctx.Err() != nil {
			return nil, s.failNode(rs, node, attempt, errkind.Cancelled, rs.ctx.Err())
		}

		if !budget.Use() {
			// Only reachable with a misconfigured MaxAttempts < 1; the loop
			// always enters attempt 1 with a fresh budget.
			rs.exec.RecordFailure(node.ID, string(errkind.Of(lastErr)), "retry budget exhausted before attempt")
			s.snapshot(rs.ctx, rs.exec)
			return nil, lastErr
		}

		s.appendEvent(rs.ctx, rs.exec, eventlog.NodeStarted, eventlog.NodeStartedData{NodeID: node.ID, Attempt: attempt})
		s.Logger.Info().Str("node_id", node.ID).Str("task_id", task.TaskID).Int("attempt", attempt).Msg("node started")

		execCtx := rs.ctx
		cancel := func() {}
		if task.Timeout > 0 {
			execCtx, cancel = context.WithTimeout(rs.ctx, task.Timeout)
		}
		tc := newTaskContext(execCtx, rs.exec, node.ID, attempt, rs.overlay)

		var output any
		execErr := cb.Execute(node.ID, attempt, func() error {
			out, err := task.Execute(tc, input)
			output = out
			return err
		})
		timedOut := execCtx.Err() == context.DeadlineExceeded
		cancel()

		if execErr == nil {
			rs.exec.RecordOutput(node.ID, output)
			s.appendEvent(rs.ctx, rs.exec, eventlog.NodeSucceeded, eventlog.NodeSucceededData{NodeID: node.ID, Attempt: attempt, OutputRef: node.ID})
			s.putResult(rs.ctx, rs.exec.ExecutionID, node.ID, attempt, true, "")
			s.snapshot(rs.ctx, rs.exec)
			s.Logger.Info().Str("node_id", node.ID).Int("attempt", attempt).Msg("node succeeded")
			return output, nil
		}

		lastErr = execErr
		var kind errkind.Kind
		switch {
		case timedOut:
			kind = errkind.Timeout
		case rs.ctx.Err() != nil:
			kind = errkind.Cancelled
		default:
			kind = errkind.Of(execErr)
		}

		s.putResult(rs.ctx, rs.exec.ExecutionID, node.ID, attempt, false, execErr.Error())

		if kind == errkind.Cancelled {
			// Cancelled halts the attempt without retry either way (spec §7),
			// but only becomes a paused execution if a pause was actually
			// requested — an externally canceled ctx or a task's own
			// Cancelled-kind error with no pause requested is a terminal
			// node failure, not a pause.
			if s.pauseRequested(rs) {
				return nil, pauseSignal{}
			}
			return nil, s.failNode(rs, node, attempt, kind, execErr)
		}

		if !budget.CanRetry() || !rp.IsRetryable(kind) {
			return nil, s.failNode(rs, node, attempt, kind, execErr)
		}

		delay := rp.Delay(attempt+1, nil)
		s.appendEvent(rs.ctx, rs.exec, eventlog.RetryScheduled, eventlog.RetryScheduledData{NodeID: node.ID, NextAttempt: attempt + 1, DelayMS: delay.Milliseconds()})
		s.Logger.Warn().Str("node_id", node.ID).Int("next_attempt", attempt+1).Dur("delay", delay).Msg("retry scheduled")

		select {
		case <-rs.pauseCh:
			return nil, pauseSignal{}
		case <-rs.ctx.Done():
			return nil, s.failNode(rs, node, attempt, errkind.Cancelled, rs.ctx.Err())
		case <-time.After(delay):
		}
	}
}

// failNode records node as terminally failed (exec.Failed entry plus
// NodeFailed event plus snapshot, spec §4.6/§7) and returns the
// *errkind.Error the caller propagates.
func (s *Scheduler) failNode(rs *runState, node *graph.Node, attempt int, kind errkind.Kind, cause error) error {
	te := errkind.New(kind, node.ID, attempt, cause.Error(), cause)
	rs.exec.RecordFailure(node.ID, string(kind), cause.Error())
	s.appendEvent(rs.ctx, rs.exec, eventlog.NodeFailed, eventlog.NodeFailedData{NodeID: node.ID, Attempt: attempt, ErrorKind: kind, Detail: cause.Error()})
	s.snapshot(rs.ctx, rs.exec)
	s.Logger.Error().Str("node_id", node.ID).Int("attempt", attempt).Str("error_kind", string(kind)).Msg("node failed terminally")
	return te
}

// runBranch evaluates arms in order and runs the first matching arm's
// sub-plan, per spec §4.1/§4.2. No arm matching is TaskError/NoMatchingBranch
// (spec §9 Open Question (b)).
func (s *Scheduler) runBranch(rs *runState, node *graph.Node, input any) (any, error) {
	vars := rs.exec.VariablesSnapshot()
	for _, arm := range node.Arms {
		if arm.Predicate == nil || arm.Predicate.Fn(input, vars) {
			return s.runPlan(rs, arm.Plan, input)
		}
	}
	return nil, errkind.New(errkind.TaskError, node.ID, 0, "no branch arm matched", nil)
}

// runParallel runs every arm with the same input concurrently and
// reassembles outputs in declared order regardless of completion order
// (spec §4.2, §5, testable property 4).
func (s *Scheduler) runParallel(rs *runState, node *graph.Node, input any) (any, error) {
	n := len(node.Plans)
	outputs := make([]any, n)
	varWrites := make([]map[string]any, n)
	strategy := policy.NewErrorStrategy(s.Policies.errorStrategyFor(node.ID), n, s.Policies.requireNFor(node.ID))

	var wg sync.WaitGroup
	for i, sub := range node.Plans {
		wg.Add(1)
		go func(i int, sub *graph.Plan) {
			defer wg.Done()
			overlay := newVarOverlay(rs.overlay, rs.exec)
			out, err := s.runPlan(rs.withOverlay(overlay), sub, input)
			strategy.Record(policy.ArmOutcome{Index: i, Output: out, Err: err})
			varWrites[i] = overlay.ownWrites()
			if err == nil {
				outputs[i] = out
			}
		}(i, sub)
	}
	wg.Wait()

	if key, conflict := rs.exec.MergeArmVariables(varWrites); conflict {
		return nil, errkind.New(errkind.ConcurrentVariableConflict, node.ID, 0,
			fmt.Sprintf("arms wrote conflicting values for variable %q", key), nil)
	}

	if strategy.Failed() {
		errs := strategy.Errors()
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, errkind.New(errkind.TaskError, node.ID, 0, "parallel node failed", nil)
	}

	return toTypedSlice(node.OutputType, outputs), nil
}

// runWhile re-executes body so long as predicate(current_value) holds,
// returning the value at the first failing evaluation (spec §4.1/§4.2).
func (s *Scheduler) runWhile(rs *runState, node *graph.Node, input any) (any, error) {
	value := input
	for node.Predicate.Fn(value, rs.exec.VariablesSnapshot()) {
		if s.pauseRequested(rs) {
			return nil, pauseSignal{}
		}
		if rs.ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, node.ID, 0, "execution context canceled", rs.ctx.Err())
		}
		out, err := s.runPlan(rs, node.Body, value)
		if err != nil {
			return nil, err
		}
		value = out
	}
	return value, nil
}

// runForEach requires a sequence input, executes body once per element
// (bounded by concurrency), and reassembles outputs in input order
// regardless of completion order (spec §4.2, testable property 4).
func (s *Scheduler) runForEach(rs *runState, node *graph.Node, input any) (any, error) {
	items, ok := toSlice(input)
	if !ok {
		return nil, errkind.New(errkind.TaskError, node.ID, 0, "forEach input is not a sequence", nil)
	}

	n := len(items)
	outputs := make([]any, n)
	varWrites := make([]map[string]any, n)
	strategy := policy.NewErrorStrategy(s.Policies.errorStrategyFor(node.ID), n, s.Policies.requireNFor(node.ID))
	concurrency := s.Policies.forEachConcurrency(node.ID, node.Concurrency)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item any) {
			defer wg.Done()
			defer func() { <-sem }()
			overlay := newVarOverlay(rs.overlay, rs.exec)
			out, err := s.runPlan(rs.withOverlay(overlay), node.Body, item)
			strategy.Record(policy.ArmOutcome{Index: i, Output: out, Err: err})
			varWrites[i] = overlay.ownWrites()
			if err == nil {
				outputs[i] = out
			}
		}(i, item)
	}
	wg.Wait()

	if key, conflict := rs.exec.MergeArmVariables(varWrites); conflict {
		return nil, errkind.New(errkind.ConcurrentVariableConflict, node.ID, 0,
			fmt.Sprintf("elements wrote conflicting values for variable %q", key), nil)
	}

	if strategy.Failed() {
		errs := strategy.Errors()
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, errkind.New(errkind.TaskError, node.ID, 0, "forEach node failed", nil)
	}

	return toTypedSlice(node.OutputType, outputs), nil
}

// runNested starts a child execution synchronously within the parent's
// context; a failed child fails the parent Nested node (spec §4.2).
func (s *Scheduler) runNested(rs *runState, node *graph.Node, input any) (any, error) {
	childPlan, ok := s.Registry.Lookup(node.FlowRef)
	if !ok {
		return nil, errkind.New(errkind.TaskError, node.ID, 0, fmt.Sprintf("nested flow %q not registered", node.FlowRef), nil)
	}

	childID := rs.exec.ExecutionID + "/" + node.ID
	child := New(childID, node.FlowRef, map[string]string{"parent_execution_id": rs.exec.ExecutionID, "parent_node_id": node.ID})

	childScheduler := &Scheduler{
		Store:     s.Store,
		Registry:  s.Registry,
		Breakers:  s.Breakers,
		Logger:    s.Logger,
		Policies:  s.Policies,
		OwnerName: s.OwnerName,
	}
	return childScheduler.Execute(rs.ctx, childPlan, child, input, rs.pauseCh)
}

// toSlice normalizes any slice-kinded value (the common case: a concretely
// typed []T produced by a prior Then/Parallel/ForEach step) into []any for
// ForEach to range over. A plain []any is handled without reflection as the
// fast path.
func toSlice(v any) ([]any, bool) {
	if vv, ok := v.([]any); ok {
		return vv, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toTypedSlice rebuilds a concretely typed slice (matching outputType, a
// reflect.Type produced by pkg/flow as reflect.TypeOf(*new([]Out))) from the
// erased []any outputs a Parallel/ForEach node collects, so a downstream
// Then[Out, …] sees the []Out its erase() type-asserts against rather than
// an opaque []any. Falls back to returning outputs unchanged if outputType
// is unavailable (e.g. a plan built directly against internal/graph without
// going through pkg/flow).
func toTypedSlice(outputType reflect.Type, outputs []any) any {
	if outputType == nil || outputType.Kind() != reflect.Slice {
		return outputs
	}
	result := reflect.MakeSlice(outputType, len(outputs), len(outputs))
	for i, v := range outputs {
		if v == nil {
			continue
		}
		result.Index(i).Set(reflect.ValueOf(v))
	}
	return result.Interface()
}

func (s *Scheduler) appendEvent(ctx context.Context, exec *Execution, t eventlog.Type, data any) {
	ev := eventlog.New(exec.ExecutionID, t, data)
	if _, err := s.Store.AppendEvent(ctx, exec.ExecutionID, ev); err != nil {
		s.Logger.Error().Err(err).Str("execution_id", exec.ExecutionID).Str("event_type", string(t)).Msg("failed to append event")
	}
}

func (s *Scheduler) putResult(ctx context.Context, executionID, nodeID string, attempt int, success bool, detail string) {
	if err := s.Store.PutTaskResult(ctx, storage.TaskResult{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Attempt:     attempt,
		Success:     success,
		ErrorDetail: detail,
	}); err != nil {
		s.Logger.Error().Err(err).Str("execution_id", executionID).Str("node_id", nodeID).Msg("failed to record task result")
	}
}

func (s *Scheduler) snapshot(ctx context.Context, exec *Execution) {
	clone := exec.Clone()
	blob, err := MarshalSnapshot(clone)
	if err != nil {
		s.Logger.Error().Err(err).Str("execution_id", exec.ExecutionID).Msg("failed to marshal snapshot")
		return
	}
	version := nextVersion(clone)
	for {
		err = s.Store.PutSnapshot(ctx, exec.ExecutionID, version, blob)
		if err != storage.ErrSnapshotExists {
			break
		}
		version++
	}
	if err != nil {
		s.Logger.Error().Err(err).Str("execution_id", exec.ExecutionID).Int64("version", version).Msg("failed to persist snapshot")
	}
}

// nextVersion derives the first snapshot version snapshot() tries from how
// many node outcomes have been recorded so far: completed + failed nodes,
// plus one for the initial ExecutionStarted snapshot. A transition that
// records no node outcome (pause, resume, compensation, the terminal status)
// finds that version taken, and snapshot() writes at the next free version
// instead. It intentionally does not rely on wallclock time, keeping replay
// (spec §8 property 1) reproducible.
func nextVersion(exec *Execution) int64 {
	return int64(len(exec.Completed) + len(exec.Failed) + 1)
}

func (s *Scheduler) runCompensation(ctx context.Context, plan *graph.Plan, exec *Execution) {
	completed := make([]policy.CompletedNode, 0, len(exec.Completed))
	for _, entry := range exec.Completed {
		node, ok := plan.NodeByID(entry.NodeID)
		if !ok || node.Task == nil {
			continue
		}
		out, _ := exec.Output(entry.NodeID)
		completed = append(completed, policy.CompletedNode{NodeID: entry.NodeID, Task: node.Task, Output: out})
	}

	s.appendEvent(ctx, exec, eventlog.CompensationStart, nil)
	tc := newTaskContext(ctx, exec, "", 0, nil)
	results := policy.RunCompensation(tc, completed)

	for _, r := range results {
		if r.Skipped {
			continue
		}
		if r.Err != nil {
			s.appendEvent(ctx, exec, eventlog.CompensationErrorType, eventlog.CompensationErrorData{NodeID: r.NodeID, Detail: r.Err.Error()})
			s.Logger.Error().Str("node_id", r.NodeID).Err(r.Err).Msg("compensation failed")
			continue
		}
		s.appendEvent(ctx, exec, eventlog.Compensated, eventlog.CompensatedData{NodeID: r.NodeID})
		s.Logger.Info().Str("node_id", r.NodeID).Msg("compensated")
	}
	s.snapshot(ctx, exec)
}
