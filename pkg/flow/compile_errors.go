package flow

import "github.com/durableflow/durableflow/internal/graph"

// CompileError and its Kind constants are re-exported so callers checking
// Compile's return value never need to import internal/graph directly
// (spec §7: "CompileError never surfaces at runtime — it prevents
// registration").
type CompileError = graph.CompileError
type CompileErrorKind = graph.CompileErrorKind

const (
	ErrTypeMismatch         = graph.ErrTypeMismatch
	ErrBranchTypeDivergence = graph.ErrBranchTypeDivergence
	ErrDuplicateTaskID      = graph.ErrDuplicateTaskID
	ErrEmptyPlan            = graph.ErrEmptyPlan
	ErrLoopTypeMismatch     = graph.ErrLoopTypeMismatch
)
