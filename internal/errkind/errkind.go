// Package errkind defines the closed set of error kinds used throughout the
// engine (spec §7) and the Error type that carries one. It is deliberately
// tiny and dependency-free so that internal/policy, internal/engine, and
// internal/eventlog can all depend on it without creating an import cycle —
// none of those packages own the concept, the error taxonomy does.
package errkind

import "fmt"

// Kind is the closed set of error kinds the engine ever surfaces.
type Kind string

const (
	ValidationError            Kind = "ValidationError"
	TaskError                  Kind = "TaskError"
	Timeout                    Kind = "Timeout"
	Cancelled                  Kind = "Cancelled"
	CircuitOpen                Kind = "CircuitOpen"
	CompileError               Kind = "CompileError"
	CompensationError          Kind = "CompensationError"
	StorageError               Kind = "StorageError"
	LeaseLost                  Kind = "LeaseLost"
	ConcurrentVariableConflict Kind = "ConcurrentVariableConflict"
)

// Error is a user-visible failure. It always carries the fields spec §7
// requires: kind, message, the offending node_id, the attempt number, and the
// original error (kept as Detail so it can be serialized safely rather than
// relying on Go's error-wrapping chain surviving a JSON round trip).
type Error struct {
	Kind    Kind
	Message string
	NodeID  string
	Attempt int
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s at %s (attempt %d): %s", e.Kind, e.NodeID, e.Attempt, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error, capturing cause.Error() into Detail so the error
// survives serialization even if the concrete cause type does not round-trip.
func New(kind Kind, nodeID string, attempt int, message string, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{
		Kind:    kind,
		Message: message,
		NodeID:  nodeID,
		Attempt: attempt,
		Detail:  detail,
		Cause:   cause,
	}
}

// Of extracts the Kind from err if it is (or wraps) an *Error, defaulting
// to the TaskError kind for an opaque error — the policy layer treats anything it
// doesn't recognize as a plain task failure, never as a free pass.
func Of(err error) Kind {
	var te *Error
	if as(err, &te) {
		return te.Kind
	}
	return TaskError
}

// as is a tiny errors.As shim kept local to avoid importing errors just for
// this one call site in a leaf package.
func as(err error, target **Error) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether kind is retried by default: every kind except
// Cancelled, ValidationError, CircuitOpen and CompileError.
func Retryable(kind Kind) bool {
	switch kind {
	case Cancelled, ValidationError, CircuitOpen, CompileError:
		return false
	default:
		return true
	}
}
