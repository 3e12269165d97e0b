package eventlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableflow/durableflow/internal/errkind"
)

func TestNew_LeavesSeqZeroForLogToAssign(t *testing.T) {
	ev := New("exec-1", NodeStarted, NodeStartedData{NodeID: "0.then", Attempt: 1})
	assert.Equal(t, int64(0), ev.Seq)
	assert.Equal(t, "exec-1", ev.ExecutionID)
	assert.False(t, ev.Wallclock.IsZero())
}

func TestEvent_ToJSON_RoundTripsTypeAndData(t *testing.T) {
	ev := New("exec-1", NodeFailed, NodeFailedData{
		NodeID: "0.then", Attempt: 2, ErrorKind: errkind.Timeout, Detail: "deadline exceeded",
	})
	ev.Seq = 7

	raw, err := ev.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "exec-1", decoded["execution_id"])
	assert.Equal(t, float64(7), decoded["seq"])
	assert.Equal(t, string(NodeFailed), decoded["type"])

	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0.then", data["node_id"])
	assert.Equal(t, string(errkind.Timeout), data["error_kind"])
}

func TestCompensationErrorType_IsDistinctFromCompensated(t *testing.T) {
	// Spec property 6 requires one or the other per compensated node; they
	// must never collapse to the same wire value.
	assert.NotEqual(t, Compensated, CompensationErrorType)
}
