// Package storage defines the abstract Storage Port (C2) the engine depends
// on, and nothing else — no implementation lives here. internal/storage/memstore
// provides the in-memory reference implementation used by engine tests;
// internal/storage/pgstore provides the Postgres-backed implementation,
// grounded on the teacher's BunStore
// (internal/infrastructure/storage/bun_store.go).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/durableflow/durableflow/internal/eventlog"
)

// ErrNotFound is returned by read operations that find nothing.
var ErrNotFound = errors.New("storage: not found")

// ErrSnapshotExists is returned by PutSnapshot when (execution_id, version)
// already has a snapshot — snapshots are write-once per spec §8 property 3.
var ErrSnapshotExists = errors.New("storage: snapshot version already exists")

// ErrLeaseHeld is returned by AcquireLease when another owner already holds
// a live lease on the execution.
var ErrLeaseHeld = errors.New("storage: lease held by another owner")

// ErrLeaseNotHeld is returned by RenewLease/ReleaseLease when the token does
// not correspond to a currently valid lease.
var ErrLeaseNotHeld = errors.New("storage: lease not held")

// ErrLeaseActive is returned by DeleteExecution when a lease is currently held.
var ErrLeaseActive = errors.New("storage: cannot delete execution while lease is held")

// Snapshot is an immutable, versioned serialization of an Execution record.
type Snapshot struct {
	ExecutionID string
	Version     int64
	Blob        []byte
	WrittenAt   time.Time
}

// TaskResult records a single attempt's outcome, successful or not.
type TaskResult struct {
	ExecutionID string
	NodeID      string
	Attempt     int
	Success     bool
	Output      []byte
	ErrorDetail string
	RecordedAt  time.Time
}

// ExecutionSummary is the denormalized row list_executions returns.
type ExecutionSummary struct {
	ExecutionID string
	FlowID      string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilter narrows list_executions by flow, status, and/or a half-open
// time range ([After, Before), zero value meaning unbounded on that side).
type ListFilter struct {
	FlowID string
	Status string
	After  time.Time
	Before time.Time
}

// Page is a simple offset/limit pagination cursor.
type Page struct {
	Offset int
	Limit  int
}

// LeaseToken identifies a held lease; opaque to callers beyond equality.
type LeaseToken string

// Storage is the Storage Port (C2): the single interface the scheduler
// depends on. It is grounded on the teacher's unified domain.Storage
// interface (internal/domain/repository.go), narrowed to exactly the
// operations spec §4.4 names — the teacher's Storage also embeds
// WorkflowRepository/ExecutionRepository/EventStore for its own richer
// domain; this port keeps only the execution-state subset this engine needs.
type Storage interface {
	PutSnapshot(ctx context.Context, executionID string, version int64, blob []byte) error
	LatestSnapshot(ctx context.Context, executionID string) (Snapshot, error)

	AppendEvent(ctx context.Context, executionID string, event eventlog.Event) (int64, error)
	ReadEvents(ctx context.Context, executionID string, fromSeq int64) ([]eventlog.Event, error)

	PutTaskResult(ctx context.Context, result TaskResult) error

	ListExecutions(ctx context.Context, filter ListFilter, page Page) ([]ExecutionSummary, error)
	DeleteExecution(ctx context.Context, executionID string) error

	AcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (LeaseToken, error)
	RenewLease(ctx context.Context, token LeaseToken, ttl time.Duration) error
	ReleaseLease(ctx context.Context, token LeaseToken) error

	Ping(ctx context.Context) error
	Close() error
}
