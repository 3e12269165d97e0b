// Package memstore is the in-memory reference implementation of the Storage
// Port, grounded on the teacher's MemoryStore and MemoryEventStore
// (internal/infrastructure/storage/memory.go, event_store.go). It is the
// store the engine's own tests exercise; internal/storage/pgstore is the
// durable counterpart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/durableflow/durableflow/internal/eventlog"
	"github.com/durableflow/durableflow/internal/storage"
)

type execRecord struct {
	flowID    string
	status    string
	createdAt time.Time
	updatedAt time.Time

	snapshots map[int64]storage.Snapshot
	events    []eventlog.Event
	results   []storage.TaskResult

	leaseToken   storage.LeaseToken
	leaseOwner   string
	leaseExpires time.Time
}

// Store is a mutex-protected, map-based Storage implementation. Safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	execs map[string]*execRecord
	// tokens maps a lease token back to the execution it belongs to, so
	// RenewLease/ReleaseLease don't need the execution_id.
	tokens map[storage.LeaseToken]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		execs:  map[string]*execRecord{},
		tokens: map[storage.LeaseToken]string{},
	}
}

func (s *Store) record(executionID string) *execRecord {
	r, ok := s.execs[executionID]
	if !ok {
		r = &execRecord{
			snapshots: map[int64]storage.Snapshot{},
			createdAt: time.Now(),
		}
		s.execs[executionID] = r
	}
	return r
}

// SetFlowID lets callers record which flow an execution belongs to, so
// ListExecutions can filter on it. Not part of the Storage interface: it is
// a memstore-only helper, mirroring how the teacher's MemoryStore exposes
// extra helper methods beyond the interface it backs. The engine talks to
// storage only through the Storage interface and does not call it.
func (s *Store) SetFlowID(executionID, flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(executionID)
	r.flowID = flowID
}

// SetStatus updates the denormalized status field ListExecutions filters on.
func (s *Store) SetStatus(executionID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(executionID)
	r.status = status
	r.updatedAt = time.Now()
}

func (s *Store) PutSnapshot(ctx context.Context, executionID string, version int64, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(executionID)
	if _, exists := r.snapshots[version]; exists {
		return storage.ErrSnapshotExists
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	r.snapshots[version] = storage.Snapshot{ExecutionID: executionID, Version: version, Blob: cp, WrittenAt: time.Now()}
	r.updatedAt = time.Now()
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, executionID string) (storage.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[executionID]
	if !ok || len(r.snapshots) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	var best int64 = -1
	for v := range r.snapshots {
		if v > best {
			best = v
		}
	}
	return r.snapshots[best], nil
}

func (s *Store) AppendEvent(ctx context.Context, executionID string, event eventlog.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(executionID)
	seq := int64(len(r.events)) + 1
	event.ExecutionID = executionID
	event.Seq = seq
	r.events = append(r.events, event)
	r.updatedAt = time.Now()
	return seq, nil
}

func (s *Store) ReadEvents(ctx context.Context, executionID string, fromSeq int64) ([]eventlog.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[executionID]
	if !ok {
		return nil, nil
	}
	var out []eventlog.Event
	for _, e := range r.events {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) PutTaskResult(ctx context.Context, result storage.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(result.ExecutionID)
	result.RecordedAt = time.Now()
	r.results = append(r.results, result)
	return nil
}

func (s *Store) ListExecutions(ctx context.Context, filter storage.ListFilter, page storage.Page) ([]storage.ExecutionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id := range s.execs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []storage.ExecutionSummary
	for _, id := range ids {
		r := s.execs[id]
		if filter.FlowID != "" && r.flowID != filter.FlowID {
			continue
		}
		if filter.Status != "" && r.status != filter.Status {
			continue
		}
		if !filter.After.IsZero() && r.createdAt.Before(filter.After) {
			continue
		}
		if !filter.Before.IsZero() && !r.createdAt.Before(filter.Before) {
			continue
		}
		matched = append(matched, storage.ExecutionSummary{
			ExecutionID: id,
			FlowID:      r.flowID,
			Status:      r.status,
			CreatedAt:   r.createdAt,
			UpdatedAt:   r.updatedAt,
		})
	}

	if page.Limit <= 0 {
		if page.Offset >= len(matched) {
			return nil, nil
		}
		return matched[page.Offset:], nil
	}
	start := page.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) DeleteExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[executionID]
	if !ok {
		return storage.ErrNotFound
	}
	if r.leaseToken != "" && time.Now().Before(r.leaseExpires) {
		return storage.ErrLeaseActive
	}
	delete(s.execs, executionID)
	return nil
}

func (s *Store) AcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (storage.LeaseToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(executionID)
	now := time.Now()
	if r.leaseToken != "" && now.Before(r.leaseExpires) && r.leaseOwner != owner {
		return "", storage.ErrLeaseHeld
	}
	token := storage.LeaseToken(fmt.Sprintf("%s:%s", executionID, uuid.NewString()))
	if r.leaseToken != "" {
		delete(s.tokens, r.leaseToken)
	}
	r.leaseToken = token
	r.leaseOwner = owner
	r.leaseExpires = now.Add(ttl)
	s.tokens[token] = executionID
	return token, nil
}

func (s *Store) RenewLease(ctx context.Context, token storage.LeaseToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	executionID, ok := s.tokens[token]
	if !ok {
		return storage.ErrLeaseNotHeld
	}
	r := s.execs[executionID]
	if r.leaseToken != token {
		return storage.ErrLeaseNotHeld
	}
	r.leaseExpires = time.Now().Add(ttl)
	return nil
}

func (s *Store) ReleaseLease(ctx context.Context, token storage.LeaseToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	executionID, ok := s.tokens[token]
	if !ok {
		return storage.ErrLeaseNotHeld
	}
	r := s.execs[executionID]
	if r.leaseToken == token {
		r.leaseToken = ""
		r.leaseOwner = ""
	}
	delete(s.tokens, token)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var _ storage.Storage = (*Store)(nil)
