// Package eventlog defines the event half of C7: the closed set of event
// types and their payloads. Appending and reading events goes through the
// Storage Port (internal/storage); snapshot encoding lives in
// internal/engine/snapshot.go. It is grounded on the teacher's
// domain.Event/EventStore pair (internal/domain/events.go,
// internal/infrastructure/storage/event_store.go), generalized from the
// teacher's open-ended EventType string constants tied to its own node
// domain to the closed, engine-level event set spec §4.6 enumerates.
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/durableflow/durableflow/internal/errkind"
)

// Type is the closed set of event kinds, per spec §4.6.
type Type string

const (
	ExecutionStarted   Type = "ExecutionStarted"
	NodeStarted        Type = "NodeStarted"
	NodeSucceeded      Type = "NodeSucceeded"
	NodeFailed         Type = "NodeFailed"
	RetryScheduled     Type = "RetryScheduled"
	Paused             Type = "Paused"
	Resumed            Type = "Resumed"
	CompensationStart  Type = "CompensationStarted"
	Compensated        Type = "Compensated"
	// CompensationErrorType is not in spec §4.6's enumerated closed set, but
	// is required by spec §8 testable property 6 ("there is either a
	// Compensated(n) event or a CompensationError(n) event") — an internal
	// inconsistency in the source resolved here by adding the event the
	// property depends on, since without it property 6 could never be
	// satisfied when a compensation actually fails.
	CompensationErrorType Type = "CompensationError"
	ExecutionCompleted Type = "ExecutionCompleted"
	ExecutionFailed    Type = "ExecutionFailed"
)

// Event is one entry in an execution's event log. Every event carries
// (execution_id, seq, wallclock) per spec §4.6; Data holds the
// type-specific payload, one of the *Data structs below (or nil).
//
// This mirrors the teacher's BaseEvent (internal/domain/events.go) but
// drops the teacher's free-form Metadata map and AggregateID in favor of
// the fixed field set this spec actually requires.
type Event struct {
	ExecutionID string    `json:"execution_id"`
	Seq         int64     `json:"seq"`
	Wallclock   time.Time `json:"wallclock"`
	Type        Type      `json:"type"`
	Data        any       `json:"data"`
}

// ToJSON serializes the event using encoding/json directly; canonical
// key-sorting for the replay-determinism property is applied one level up,
// when a whole snapshot (which embeds no event data verbatim, only
// references) is serialized — events themselves are read-side records, not
// replayed byte-for-byte, so standard json.Marshal is sufficient here.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExecutionStartedData is Data for an ExecutionStarted event.
type ExecutionStartedData struct {
	FlowID string `json:"flow_id"`
}

// NodeStartedData is Data for a NodeStarted event.
type NodeStartedData struct {
	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
}

// NodeSucceededData is Data for a NodeSucceeded event.
type NodeSucceededData struct {
	NodeID    string `json:"node_id"`
	Attempt   int    `json:"attempt"`
	OutputRef string `json:"output_ref"`
}

// NodeFailedData is Data for a NodeFailed event.
type NodeFailedData struct {
	NodeID    string       `json:"node_id"`
	Attempt   int          `json:"attempt"`
	ErrorKind errkind.Kind `json:"error_kind"`
	Detail    string       `json:"detail"`
}

// RetryScheduledData is Data for a RetryScheduled event.
type RetryScheduledData struct {
	NodeID      string `json:"node_id"`
	NextAttempt int    `json:"next_attempt"`
	DelayMS     int64  `json:"delay_ms"`
}

// PausedData is Data for a Paused event.
type PausedData struct {
	Reason string `json:"reason"`
}

// ResumedData is Data for a Resumed event.
type ResumedData struct {
	Owner string `json:"owner"`
}

// CompensatedData is Data for a Compensated event.
type CompensatedData struct {
	NodeID string `json:"node_id"`
}

// CompensationErrorData is Data for a node whose compensation itself
// failed; spec §8 property 6 requires this or Compensated for every
// compensable NodeSucceeded when the execution ends ExecutionFailed.
type CompensationErrorData struct {
	NodeID string `json:"node_id"`
	Detail string `json:"detail"`
}

// ExecutionCompletedData is Data for an ExecutionCompleted event.
type ExecutionCompletedData struct {
	FinalOutputRef string `json:"final_output_ref"`
}

// ExecutionFailedData is Data for an ExecutionFailed event.
type ExecutionFailedData struct {
	ErrorKind errkind.Kind `json:"error_kind"`
}

// New builds an Event; seq is assigned by Storage.AppendEvent, not here — a
// constructed Event with Seq left at zero is valid input to AppendEvent.
func New(executionID string, t Type, data any) Event {
	return Event{
		ExecutionID: executionID,
		Wallclock:   time.Now(),
		Type:        t,
		Data:        data,
	}
}
