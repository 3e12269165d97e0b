package engine

import (
	"encoding/json"
	"time"
)

// snapshotDTO is the wire shape of an Execution snapshot. Its field order is
// fixed by the struct declaration (encoding/json always emits struct fields
// in declaration order) and every map-typed field has string keys, which
// encoding/json sorts on every Marshal call — together these
// give the "canonical, deterministic serialization (key-sorted)" spec §6
// requires for free, without a custom encoder: two snapshots built from
// identical Execution state marshal to byte-identical JSON.
type snapshotDTO struct {
	ExecutionID string            `json:"execution_id"`
	FlowID      string            `json:"flow_id"`
	Status      string            `json:"status"`
	Cursor      string            `json:"cursor"`
	Input       any               `json:"input"`
	Completed   []CompletedEntry  `json:"completed"`
	Failed      []FailedEntry     `json:"failed"`
	Outputs     map[string]any    `json:"outputs"`
	Variables   map[string]any    `json:"variables"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// MarshalSnapshot renders exec's current state to its canonical form.
// Callers should pass exec.Clone() (or otherwise ensure nothing is mutating
// concurrently) to avoid torn reads of the map fields.
func MarshalSnapshot(exec *Execution) ([]byte, error) {
	dto := snapshotDTO{
		ExecutionID: exec.ExecutionID,
		FlowID:      exec.FlowID,
		Status:      string(exec.Status),
		Cursor:      exec.Cursor,
		Input:       exec.Input,
		Completed:   exec.Completed,
		Failed:      exec.Failed,
		Outputs:     exec.Outputs,
		Variables:   exec.Variables,
		Metadata:    exec.Metadata,
		CreatedAt:   exec.CreatedAt.UTC().Format(rfc3339Nano),
		UpdatedAt:   exec.UpdatedAt.UTC().Format(rfc3339Nano),
	}
	if dto.Completed == nil {
		dto.Completed = []CompletedEntry{}
	}
	if dto.Failed == nil {
		dto.Failed = []FailedEntry{}
	}
	return json.Marshal(dto)
}

// UnmarshalSnapshot reconstructs an Execution from a previously marshaled
// snapshot blob, the inverse of MarshalSnapshot used on resume.
func UnmarshalSnapshot(blob []byte) (*Execution, error) {
	var dto snapshotDTO
	if err := json.Unmarshal(blob, &dto); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(dto.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(dto.UpdatedAt)
	if err != nil {
		return nil, err
	}
	exec := &Execution{
		ExecutionID: dto.ExecutionID,
		FlowID:      dto.FlowID,
		Status:      Status(dto.Status),
		Cursor:      dto.Cursor,
		Input:       dto.Input,
		Completed:   dto.Completed,
		Failed:      dto.Failed,
		Outputs:     dto.Outputs,
		Variables:   dto.Variables,
		Metadata:    dto.Metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	if exec.Outputs == nil {
		exec.Outputs = map[string]any{}
	}
	if exec.Variables == nil {
		exec.Variables = map[string]any{}
	}
	if exec.Metadata == nil {
		exec.Metadata = map[string]string{}
	}
	return exec, nil
}

const rfc3339Nano = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(rfc3339Nano, s)
}
