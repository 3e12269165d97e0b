// Package pgstore is the Postgres-backed Storage implementation, grounded
// on the teacher's BunStore (internal/infrastructure/storage/bun_store.go):
// same ORM (uptrace/bun), same connection setup via pgdriver.NewConnector,
// same bun.Ident table-model style, generalized from the teacher's
// workflow/node/edge/trigger schema to the four tables this engine's
// Storage Port actually needs (snapshots, events, task_results, leases).
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/durableflow/durableflow/internal/eventlog"
	"github.com/durableflow/durableflow/internal/storage"
)

// SnapshotModel is one row of the snapshots table: an immutable, versioned
// blob. (execution_id, version) is the primary key, enforcing the
// write-once invariant (spec §8 property 3) at the schema level via the
// unique constraint implied by the composite primary key.
type SnapshotModel struct {
	bun.BaseModel `bun:"table:snapshots,alias:sn"`

	ExecutionID string    `bun:"execution_id,pk"`
	Version     int64     `bun:"version,pk"`
	Blob        []byte    `bun:"blob,type:jsonb"`
	WrittenAt   time.Time `bun:"written_at,nullzero,default:current_timestamp"`
}

// EventModel is one row of the events table.
type EventModel struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ExecutionID string    `bun:"execution_id,pk"`
	Seq         int64     `bun:"seq,pk"`
	Wallclock   time.Time `bun:"wallclock,nullzero,default:current_timestamp"`
	Type        string    `bun:"type"`
	Data        []byte    `bun:"data,type:jsonb"`
}

// TaskResultModel is one row of the task_results table.
type TaskResultModel struct {
	bun.BaseModel `bun:"table:task_results,alias:tr"`

	ID          string    `bun:"id,pk"`
	ExecutionID string    `bun:"execution_id"`
	NodeID      string    `bun:"node_id"`
	Attempt     int       `bun:"attempt"`
	Success     bool      `bun:"success"`
	Output      []byte    `bun:"output,type:jsonb"`
	ErrorDetail string    `bun:"error_detail"`
	RecordedAt  time.Time `bun:"recorded_at,nullzero,default:current_timestamp"`
}

// ExecutionModel is a denormalized row used only by ListExecutions, mirroring
// the teacher's ExecutionModel (bun_store.go) narrowed to the fields spec
// §4.4's list_executions filter needs.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:executions,alias:ex"`

	ExecutionID string    `bun:"execution_id,pk"`
	FlowID      string    `bun:"flow_id"`
	Status      string    `bun:"status"`
	CreatedAt   time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// LeaseModel is one row per execution's current lease, grounded on the
// teacher's use of a single row per aggregate for exclusive ownership
// (the ExecutionStateModel pattern in bun_store.go, repurposed here to carry
// lease token/owner/expiry instead of node-state).
type LeaseModel struct {
	bun.BaseModel `bun:"table:leases,alias:ls"`

	ExecutionID string    `bun:"execution_id,pk"`
	Token       string    `bun:"token"`
	Owner       string    `bun:"owner"`
	ExpiresAt   time.Time `bun:"expires_at"`
}

// Store is the bun/Postgres-backed Storage implementation.
type Store struct {
	db *bun.DB
}

// New opens a connection using pgdriver (the teacher's connector of choice)
// and wraps it with bun + pgdialect, exactly the teacher's NewBunStore setup.
func New(dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db}, nil
}

// InitSchema creates every table this store needs, if absent. Grounded on
// the teacher's InitSchema (bun_store.go), which does the same per-model
// NewCreateTable().IfNotExists() loop.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*SnapshotModel)(nil),
		(*EventModel)(nil),
		(*TaskResultModel)(nil),
		(*ExecutionModel)(nil),
		(*LeaseModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PutSnapshot(ctx context.Context, executionID string, version int64, blob []byte) error {
	model := &SnapshotModel{ExecutionID: executionID, Version: version, Blob: blob, WrittenAt: time.Now()}
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return storage.ErrSnapshotExists
	}
	return err
}

func (s *Store) LatestSnapshot(ctx context.Context, executionID string) (storage.Snapshot, error) {
	model := new(SnapshotModel)
	err := s.db.NewSelect().
		Model(model).
		Where("execution_id = ?", executionID).
		OrderExpr("version DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, err
	}
	return storage.Snapshot{ExecutionID: model.ExecutionID, Version: model.Version, Blob: model.Blob, WrittenAt: model.WrittenAt}, nil
}

func (s *Store) AppendEvent(ctx context.Context, executionID string, event eventlog.Event) (int64, error) {
	var seq int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var max sql.NullInt64
		if err := tx.NewSelect().
			Model((*EventModel)(nil)).
			ColumnExpr("MAX(seq)").
			Where("execution_id = ?", executionID).
			Scan(ctx, &max); err != nil {
			return err
		}
		seq = max.Int64 + 1

		data, err := event.ToJSON()
		if err != nil {
			return err
		}
		row := &EventModel{
			ExecutionID: executionID,
			Seq:         seq,
			Wallclock:   time.Now(),
			Type:        string(event.Type),
			Data:        data,
		}
		_, err = tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
	return seq, err
}

func (s *Store) ReadEvents(ctx context.Context, executionID string, fromSeq int64) ([]eventlog.Event, error) {
	var rows []EventModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("execution_id = ? AND seq >= ?", executionID, fromSeq).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]eventlog.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, eventlog.Event{
			ExecutionID: r.ExecutionID,
			Seq:         r.Seq,
			Wallclock:   r.Wallclock,
			Type:        eventlog.Type(r.Type),
			Data:        r.Data,
		})
	}
	return out, nil
}

func (s *Store) PutTaskResult(ctx context.Context, result storage.TaskResult) error {
	model := &TaskResultModel{
		ID:          uuid.NewString(),
		ExecutionID: result.ExecutionID,
		NodeID:      result.NodeID,
		Attempt:     result.Attempt,
		Success:     result.Success,
		Output:      result.Output,
		ErrorDetail: result.ErrorDetail,
		RecordedAt:  time.Now(),
	}
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *Store) ListExecutions(ctx context.Context, filter storage.ListFilter, page storage.Page) ([]storage.ExecutionSummary, error) {
	q := s.db.NewSelect().Model((*ExecutionModel)(nil))
	if filter.FlowID != "" {
		q = q.Where("flow_id = ?", filter.FlowID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.After.IsZero() {
		q = q.Where("created_at >= ?", filter.After)
	}
	if !filter.Before.IsZero() {
		q = q.Where("created_at < ?", filter.Before)
	}
	q = q.OrderExpr("created_at ASC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset)
	}

	var rows []ExecutionModel
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]storage.ExecutionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.ExecutionSummary{
			ExecutionID: r.ExecutionID,
			FlowID:      r.FlowID,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteExecution(ctx context.Context, executionID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var lease LeaseModel
		err := tx.NewSelect().Model(&lease).Where("execution_id = ?", executionID).Scan(ctx)
		if err == nil && time.Now().Before(lease.ExpiresAt) {
			return storage.ErrLeaseActive
		}

		for _, model := range []any{(*SnapshotModel)(nil), (*EventModel)(nil), (*TaskResultModel)(nil), (*LeaseModel)(nil)} {
			if _, err := tx.NewDelete().Model(model).Where("execution_id = ?", executionID).Exec(ctx); err != nil {
				return err
			}
		}
		_, err = tx.NewDelete().Model((*ExecutionModel)(nil)).Where("execution_id = ?", executionID).Exec(ctx)
		return err
	})
}

func (s *Store) AcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (storage.LeaseToken, error) {
	var token storage.LeaseToken
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing LeaseModel
		err := tx.NewSelect().Model(&existing).Where("execution_id = ?", executionID).For("UPDATE").Scan(ctx)
		now := time.Now()
		if err == nil && now.Before(existing.ExpiresAt) && existing.Owner != owner {
			return storage.ErrLeaseHeld
		}

		t := uuid.NewString()
		token = storage.LeaseToken(t)
		row := &LeaseModel{ExecutionID: executionID, Token: t, Owner: owner, ExpiresAt: now.Add(ttl)}
		_, err = tx.NewInsert().Model(row).
			On("CONFLICT (execution_id) DO UPDATE").
			Set("token = EXCLUDED.token, owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at").
			Exec(ctx)
		return err
	})
	return token, err
}

func (s *Store) RenewLease(ctx context.Context, token storage.LeaseToken, ttl time.Duration) error {
	res, err := s.db.NewUpdate().
		Model((*LeaseModel)(nil)).
		Set("expires_at = ?", time.Now().Add(ttl)).
		Where("token = ?", string(token)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrLeaseNotHeld
	}
	return nil
}

func (s *Store) ReleaseLease(ctx context.Context, token storage.LeaseToken) error {
	res, err := s.db.NewDelete().
		Model((*LeaseModel)(nil)).
		Where("token = ?", string(token)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrLeaseNotHeld
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func asPgError(err error, target *pgdriver.Error) bool {
	for err != nil {
		if pe, ok := err.(pgdriver.Error); ok {
			*target = pe
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

var _ storage.Storage = (*Store)(nil)
