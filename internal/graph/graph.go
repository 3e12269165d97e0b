// Package graph implements the immutable, compiled representation of a
// workflow plan (C3 in the design). It is the target the fluent compiler
// (pkg/flow) lowers a composition chain into, and the structure the
// scheduler (internal/engine) walks to drive an execution.
//
// A Plan here is a tree, not the edge-list DAG the teacher's
// WorkflowGraph (internal/application/executor/graph.go) models — the fluent
// builder composes a tree by construction, so there is no cycle detection to
// do here (composition cannot produce a back edge); what takes its place is
// the pairwise type-compatibility check across adjacent nodes, which plays
// the same "reject an invalid plan at compile time" role the teacher's
// HasCycles/TopologicalSort pair plays for its graph.
package graph

import (
	"fmt"
	"reflect"
	"strconv"
)

// Kind identifies which Node variant a Node is.
type Kind int

const (
	KindStep Kind = iota
	KindBranch
	KindParallel
	KindWhile
	KindForEach
	KindNested
)

// String returns the path-component tag used when assigning node_ids, e.g.
// "then" for a Step, mirroring spec.md's "0.branch.1.then.2" style ids.
func (k Kind) String() string {
	switch k {
	case KindStep:
		return "then"
	case KindBranch:
		return "branch"
	case KindParallel:
		return "parallel"
	case KindWhile:
		return "while"
	case KindForEach:
		return "forEach"
	case KindNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Predicate is a pure, non-serialized capability evaluated against the
// current value and the execution's variables (spec §4.1: "Predicates are
// pure functions of the current value"; SPEC_FULL.md extends this to also
// expose variables, matching the teacher's ConditionEvaluator evaluating
// compiled expr-lang/expr programs against a variables map
// (internal/application/executor/conditions.go)). Persisted executions
// reference it by compiled node position, never by closure identity
// (design note in spec.md §9).
type Predicate struct {
	Describe string
	Fn       func(value any, variables map[string]any) bool
}

// Arm is one branch of a Branch node: a predicate and the sub-plan to run
// when it matches. A nil Predicate marks a default/else arm, which — if
// present — must be last.
type Arm struct {
	Predicate *Predicate
	Plan      *Plan
}

// Node is one position in a compiled Plan. Exactly the fields relevant to
// its Kind are populated; the rest stay zero. This mirrors the teacher's
// single NodeConfig struct carrying type-specific config in a map, generalized
// here to typed fields per variant since the compiler already knows the
// variant at construction time.
type Node struct {
	ID   string
	Kind Kind

	InputType  reflect.Type
	OutputType reflect.Type

	// KindStep
	Task *Task

	// KindBranch
	Arms []Arm

	// KindParallel
	Plans []*Plan

	// KindWhile, KindForEach
	Predicate   *Predicate // KindWhile only
	Body        *Plan
	Concurrency int // KindForEach only; default 1 per spec.md §9 Open Question (a)

	// KindNested
	FlowRef string
}

// Plan is an ordered, immutable sequence of Nodes compiled from a fluent
// chain. The invariant enforced at construction is that node i's OutputType
// is assignable to node i+1's InputType.
type Plan struct {
	FlowID string
	Nodes  []*Node

	byID map[string]*Node
}

// NodeByID resolves a path-style node_id to its Node, searching this plan
// and recursively into every nested sub-plan (Branch arms, Parallel plans,
// While/ForEach bodies). The scheduler uses it to find the task behind each
// completed node when it runs compensation.
func (p *Plan) NodeByID(id string) (*Node, bool) {
	if n, ok := p.byID[id]; ok {
		return n, true
	}
	return nil, false
}

// RootNodes returns the first-level nodes of the plan, in declared order.
func (p *Plan) RootNodes() []*Node {
	return p.Nodes
}

// SuccessorOf returns the node that sequentially follows id within the same
// plan level, or nil if id is the last node at its level (or not found).
func (p *Plan) SuccessorOf(id string) (*Node, bool) {
	for level, nodes := range p.levels() {
		_ = level
		for i, n := range nodes {
			if n.ID == id {
				if i+1 < len(nodes) {
					return nodes[i+1], true
				}
				return nil, false
			}
		}
	}
	return nil, false
}

// ArmsOf returns the Branch arms of the node identified by id, or nil if id
// does not name a Branch node.
func (p *Plan) ArmsOf(id string) []Arm {
	n, ok := p.NodeByID(id)
	if !ok || n.Kind != KindBranch {
		return nil
	}
	return n.Arms
}

// InputTypeAt and OutputTypeAt expose a node's declared types for callers
// that need them without reaching into Node directly.
func (p *Plan) InputTypeAt(id string) (reflect.Type, bool) {
	n, ok := p.NodeByID(id)
	if !ok {
		return nil, false
	}
	return n.InputType, true
}

func (p *Plan) OutputTypeAt(id string) (reflect.Type, bool) {
	n, ok := p.NodeByID(id)
	if !ok {
		return nil, false
	}
	return n.OutputType, true
}

// levels yields every flat node slice reachable from this plan: its own
// top-level Nodes plus, recursively, every sub-plan's Nodes. It exists to
// keep SuccessorOf a plain linear search without duplicating traversal logic.
func (p *Plan) levels() [][]*Node {
	out := [][]*Node{p.Nodes}
	for _, n := range p.Nodes {
		out = append(out, subLevels(n)...)
	}
	return out
}

func subLevels(n *Node) [][]*Node {
	var out [][]*Node
	switch n.Kind {
	case KindBranch:
		for _, arm := range n.Arms {
			out = append(out, arm.Plan.levels()...)
		}
	case KindParallel:
		for _, sub := range n.Plans {
			out = append(out, sub.levels()...)
		}
	case KindWhile, KindForEach:
		if n.Body != nil {
			out = append(out, n.Body.levels()...)
		}
	}
	return out
}

// CompileErrorKind is the closed set of reasons NewPlan can refuse a plan,
// per spec.md §4.1's CompileError/TypeMismatch and
// CompileError/BranchTypeDivergence, plus the task-uniqueness check spec.md
// §4.1 assigns to "the validate capability run at registration time".
type CompileErrorKind string

const (
	ErrTypeMismatch         CompileErrorKind = "TypeMismatch"
	ErrBranchTypeDivergence CompileErrorKind = "BranchTypeDivergence"
	ErrDuplicateTaskID      CompileErrorKind = "DuplicateTaskID"
	ErrEmptyPlan            CompileErrorKind = "EmptyPlan"
	ErrLoopTypeMismatch     CompileErrorKind = "LoopTypeMismatch"
)

// CompileError is returned by NewPlan (and, above it, by pkg/flow's Build)
// when a composed chain cannot be lowered into a valid Plan. Per spec.md
// §7, CompileError never surfaces at runtime — it prevents registration.
type CompileError struct {
	Kind    CompileErrorKind
	NodeID  string
	Message string
}

func (e *CompileError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("compile error [%s] at %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("compile error [%s]: %s", e.Kind, e.Message)
}

// NewPlan assigns node_ids to nodes (and, recursively, to every sub-plan),
// validates pairwise type compatibility along the top-level sequence, and
// checks task_id uniqueness across the whole tree. It is the single
// construction point for Plan; pkg/flow's builder calls it once per Build.
func NewPlan(flowID string, nodes []*Node) (*Plan, error) {
	if len(nodes) == 0 {
		return nil, &CompileError{Kind: ErrEmptyPlan, Message: "plan has no nodes"}
	}

	assignIDs("", nodes)

	// validateNode derives a Branch node's OutputType from its arms, so it
	// runs before the pairwise check that reads OutputType.
	for _, n := range nodes {
		if err := validateNode(n); err != nil {
			return nil, err
		}
	}

	for i := 0; i+1 < len(nodes); i++ {
		if !typeCompatible(nodes[i].OutputType, nodes[i+1].InputType) {
			return nil, &CompileError{
				Kind:   ErrTypeMismatch,
				NodeID: nodes[i+1].ID,
				Message: fmt.Sprintf("output type %s of %s is not assignable to input type %s of %s",
					typeName(nodes[i].OutputType), nodes[i].ID, typeName(nodes[i+1].InputType), nodes[i+1].ID),
			}
		}
	}

	p := &Plan{FlowID: flowID, Nodes: nodes, byID: map[string]*Node{}}
	index(p, nodes)

	seen := map[string]string{}
	if err := checkUniqueTaskIDs(p, seen); err != nil {
		return nil, err
	}

	return p, nil
}

func validateNode(n *Node) error {
	switch n.Kind {
	case KindBranch:
		if len(n.Arms) == 0 {
			return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "branch has no arms"}
		}
		var unified reflect.Type
		for i, arm := range n.Arms {
			if len(arm.Plan.Nodes) == 0 {
				return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "branch arm has an empty sub-plan"}
			}
			armIn := arm.Plan.Nodes[0].InputType
			if !typeCompatible(n.InputType, armIn) {
				return &CompileError{
					Kind:   ErrTypeMismatch,
					NodeID: n.ID,
					Message: fmt.Sprintf("branch arm %d expects input %s, branch carries %s",
						i, typeName(armIn), typeName(n.InputType)),
				}
			}
			armOut := arm.Plan.Nodes[len(arm.Plan.Nodes)-1].OutputType
			if unified == nil {
				unified = armOut
			} else if unified != armOut {
				return &CompileError{
					Kind:   ErrBranchTypeDivergence,
					NodeID: n.ID,
					Message: fmt.Sprintf("branch arm %d output %s diverges from earlier arm output %s",
						i, typeName(armOut), typeName(unified)),
				}
			}
			for _, sub := range arm.Plan.Nodes {
				if err := validateNode(sub); err != nil {
					return err
				}
			}
		}
		n.OutputType = unified
	case KindParallel:
		if len(n.Plans) == 0 {
			return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "parallel has no arms"}
		}
		for i, sub := range n.Plans {
			if len(sub.Nodes) == 0 {
				return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "parallel arm has an empty sub-plan"}
			}
			armIn := sub.Nodes[0].InputType
			if !typeCompatible(n.InputType, armIn) {
				return &CompileError{
					Kind:   ErrTypeMismatch,
					NodeID: n.ID,
					Message: fmt.Sprintf("parallel arm %d expects input %s, parallel carries %s",
						i, typeName(armIn), typeName(n.InputType)),
				}
			}
			for _, node := range sub.Nodes {
				if err := validateNode(node); err != nil {
					return err
				}
			}
		}
	case KindWhile:
		if n.Body == nil || len(n.Body.Nodes) == 0 {
			return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "while body is empty"}
		}
		first := n.Body.Nodes[0]
		last := n.Body.Nodes[len(n.Body.Nodes)-1]
		if first.InputType != last.OutputType {
			return &CompileError{
				Kind:   ErrLoopTypeMismatch,
				NodeID: n.ID,
				Message: fmt.Sprintf("while body input %s does not equal output %s (loop invariant)",
					typeName(first.InputType), typeName(last.OutputType)),
			}
		}
		for _, node := range n.Body.Nodes {
			if err := validateNode(node); err != nil {
				return err
			}
		}
	case KindForEach:
		if n.Body == nil || len(n.Body.Nodes) == 0 {
			return &CompileError{Kind: ErrEmptyPlan, NodeID: n.ID, Message: "forEach body is empty"}
		}
		for _, node := range n.Body.Nodes {
			if err := validateNode(node); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkUniqueTaskIDs(p *Plan, seen map[string]string) error {
	for _, n := range p.Nodes {
		if n.Task != nil {
			if owner, ok := seen[n.Task.TaskID]; ok {
				return &CompileError{
					Kind:    ErrDuplicateTaskID,
					NodeID:  n.ID,
					Message: fmt.Sprintf("task_id %q already used by node %s", n.Task.TaskID, owner),
				}
			}
			seen[n.Task.TaskID] = n.ID
		}
		switch n.Kind {
		case KindBranch:
			for _, arm := range n.Arms {
				if err := checkUniqueTaskIDs(arm.Plan, seen); err != nil {
					return err
				}
			}
		case KindParallel:
			for _, sub := range n.Plans {
				if err := checkUniqueTaskIDs(sub, seen); err != nil {
					return err
				}
			}
		case KindWhile, KindForEach:
			if n.Body != nil {
				if err := checkUniqueTaskIDs(n.Body, seen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func index(p *Plan, nodes []*Node) {
	for _, n := range nodes {
		p.byID[n.ID] = n
		switch n.Kind {
		case KindBranch:
			for _, arm := range n.Arms {
				arm.Plan.byID = p.byID
				index(p, arm.Plan.Nodes)
			}
		case KindParallel:
			for _, sub := range n.Plans {
				sub.byID = p.byID
				index(p, sub.Nodes)
			}
		case KindWhile, KindForEach:
			if n.Body != nil {
				n.Body.byID = p.byID
				index(p, n.Body.Nodes)
			}
		}
	}
}

// assignIDs walks nodes in declared order, giving node i the id
// "<prefix><i>.<kind>", then recurses into any sub-plans with a prefix that
// appends the arm index: "<id>.<armIndex>.". This is a deliberate,
// self-consistent scheme reverse-engineered from
// the single illustrative example in the source spec; it preserves the
// property the spec actually requires — a stable, path-shaped id that
// survives recompilation as long as the chain's shape is unchanged.
func assignIDs(prefix string, nodes []*Node) {
	for i, n := range nodes {
		n.ID = prefix + strconv.Itoa(i) + "." + n.Kind.String()
		switch n.Kind {
		case KindBranch:
			for j, arm := range n.Arms {
				assignIDs(n.ID+"."+strconv.Itoa(j)+".", arm.Plan.Nodes)
			}
		case KindParallel:
			for j, sub := range n.Plans {
				assignIDs(n.ID+"."+strconv.Itoa(j)+".", sub.Nodes)
			}
		case KindWhile, KindForEach:
			if n.Body != nil {
				assignIDs(n.ID+".0.", n.Body.Nodes)
			}
		}
	}
}

func typeCompatible(out, in reflect.Type) bool {
	if out == nil || in == nil {
		return out == in
	}
	if out == in {
		return true
	}
	return out.AssignableTo(in)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
