package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableflow/durableflow/internal/eventlog"
	"github.com/durableflow/durableflow/internal/storage"
)

func TestAppendEvent_AssignsMonotonicSeq(t *testing.T) {
	s := New()
	ctx := context.Background()

	seq1, err := s.AppendEvent(ctx, "e1", eventlog.New("e1", eventlog.ExecutionStarted, nil))
	require.NoError(t, err)
	seq2, err := s.AppendEvent(ctx, "e1", eventlog.New("e1", eventlog.NodeStarted, nil))
	require.NoError(t, err)

	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)
}

func TestReadEvents_FiltersFromSeq(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.AppendEvent(ctx, "e1", eventlog.New("e1", eventlog.NodeStarted, nil))
		require.NoError(t, err)
	}

	events, err := s.ReadEvents(ctx, "e1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
}

func TestPutSnapshot_RejectsDuplicateVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutSnapshot(ctx, "e1", 1, []byte("v1")))
	err := s.PutSnapshot(ctx, "e1", 1, []byte("v1-again"))
	assert.ErrorIs(t, err, storage.ErrSnapshotExists)
}

func TestLatestSnapshot_ReturnsHighestVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutSnapshot(ctx, "e1", 1, []byte("v1")))
	require.NoError(t, s.PutSnapshot(ctx, "e1", 3, []byte("v3")))
	require.NoError(t, s.PutSnapshot(ctx, "e1", 2, []byte("v2")))

	snap, err := s.LatestSnapshot(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, "v3", string(snap.Blob))
}

func TestLatestSnapshot_NotFoundWhenEmpty(t *testing.T) {
	s := New()
	_, err := s.LatestSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAcquireLease_SecondOwnerBlockedUntilExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.AcquireLease(ctx, "e1", "owner-a", time.Hour)
	require.NoError(t, err)

	_, err = s.AcquireLease(ctx, "e1", "owner-b", time.Hour)
	assert.ErrorIs(t, err, storage.ErrLeaseHeld)

	// The original owner may re-acquire (e.g. after a crash-restart with the
	// same owner name) without waiting out the TTL.
	_, err = s.AcquireLease(ctx, "e1", "owner-a", time.Hour)
	assert.NoError(t, err)
}

func TestAcquireLease_GrantedAfterExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.AcquireLease(ctx, "e1", "owner-a", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = s.AcquireLease(ctx, "e1", "owner-b", time.Hour)
	assert.NoError(t, err)
}

func TestReleaseLease_AllowsImmediateReacquisitionByOther(t *testing.T) {
	s := New()
	ctx := context.Background()

	token, err := s.AcquireLease(ctx, "e1", "owner-a", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseLease(ctx, token))

	_, err = s.AcquireLease(ctx, "e1", "owner-b", time.Hour)
	assert.NoError(t, err)
}

func TestDeleteExecution_BlockedByActiveLease(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.AcquireLease(ctx, "e1", "owner-a", time.Hour)
	require.NoError(t, err)

	err = s.DeleteExecution(ctx, "e1")
	assert.ErrorIs(t, err, storage.ErrLeaseActive)
}

func TestListExecutions_FiltersByFlowAndStatus(t *testing.T) {
	s := New()
	s.SetFlowID("e1", "flow-a")
	s.SetStatus("e1", "completed")
	s.SetFlowID("e2", "flow-b")
	s.SetStatus("e2", "running")

	out, err := s.ListExecutions(context.Background(), storage.ListFilter{FlowID: "flow-a"}, storage.Page{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "e1", out[0].ExecutionID)
}
