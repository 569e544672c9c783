package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// Store implements the table ports on a shared database handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
	names   Names
}

// New creates a store. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect, names Names) *Store {
	return &Store{db: db, dialect: dialect, names: names.withDefaults()}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// rowsChanged turns a zero-row conditional write into ErrConditionFailed.
func rowsChanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return core.ErrConditionFailed
	}
	return nil
}

// =============================================================================
// Actor table
// =============================================================================

// GetActor returns the stored record, or nil when none exists.
func (s *Store) GetActor(ctx context.Context, actorID string) (*core.ActorState, error) {
	var (
		st          core.ActorState
		data        string
		updatedAt   int64
		lastEventID sql.NullString
		alarms      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT actor_id, version, data, updated_at, last_event_id, alarms
		FROM actor_state WHERE namespace = ? AND actor_id = ?
	`), s.names.Actors, actorID).Scan(&st.ActorID, &st.Version, &data, &updatedAt, &lastEventID, &alarms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying actor %s: %w", actorID, err)
	}

	st.Data = json.RawMessage(data)
	st.UpdatedAt = core.FromUnixMilli(updatedAt)
	st.LastEventID = lastEventID.String
	st.Alarms = map[string]int64{}
	if alarms.Valid && alarms.String != "" {
		if err := json.Unmarshal([]byte(alarms.String), &st.Alarms); err != nil {
			return nil, fmt.Errorf("decoding alarms of actor %s: %w", actorID, err)
		}
	}
	return &st, nil
}

// PutActor writes state conditioned on expectedVersion.
func (s *Store) PutActor(ctx context.Context, state *core.ActorState, expectedVersion int64) error {
	data := string(state.Data)
	if data == "" {
		data = "{}"
	}
	alarmMap := state.Alarms
	if alarmMap == nil {
		alarmMap = map[string]int64{}
	}
	alarms, err := json.Marshal(alarmMap)
	if err != nil {
		return fmt.Errorf("encoding alarms: %w", err)
	}
	lastEventID := sql.NullString{String: state.LastEventID, Valid: state.LastEventID != ""}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO actor_state (namespace, actor_id, version, data, updated_at, last_event_id, alarms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (namespace, actor_id) DO NOTHING
		`), s.names.Actors, state.ActorID, state.Version, data, core.UnixMilli(state.UpdatedAt), lastEventID, string(alarms))
	} else {
		res, err = s.db.ExecContext(ctx, s.q(`
			UPDATE actor_state
			SET version = ?, data = ?, updated_at = ?, last_event_id = ?, alarms = ?
			WHERE namespace = ? AND actor_id = ? AND version = ?
		`), state.Version, data, core.UnixMilli(state.UpdatedAt), lastEventID, string(alarms),
			s.names.Actors, state.ActorID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("writing actor %s: %w", state.ActorID, err)
	}
	return rowsChanged(res)
}

// =============================================================================
// Lock table
// =============================================================================

// InsertLock creates the lock when absent or expired before now.
func (s *Store) InsertLock(ctx context.Context, lock core.Lock, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO actor_locks (namespace, actor_id, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, actor_id) DO UPDATE
		SET holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE actor_locks.expires_at < ?
	`), s.names.Locks, lock.ActorID, lock.Holder, core.UnixMilli(lock.AcquiredAt), core.UnixMilli(lock.ExpiresAt),
		core.UnixMilli(now))
	if err != nil {
		return fmt.Errorf("inserting lock on %s: %w", lock.ActorID, err)
	}
	return rowsChanged(res)
}

// ExtendLock moves the expiry of a lock still owned by holder.
func (s *Store) ExtendLock(ctx context.Context, actorID, holder string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE actor_locks SET expires_at = ?
		WHERE namespace = ? AND actor_id = ? AND holder = ?
	`), core.UnixMilli(expiresAt), s.names.Locks, actorID, holder)
	if err != nil {
		return fmt.Errorf("extending lock on %s: %w", actorID, err)
	}
	return rowsChanged(res)
}

// DeleteLock removes a lock still owned by holder.
func (s *Store) DeleteLock(ctx context.Context, actorID, holder string) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM actor_locks WHERE namespace = ? AND actor_id = ? AND holder = ?
	`), s.names.Locks, actorID, holder)
	if err != nil {
		return fmt.Errorf("deleting lock on %s: %w", actorID, err)
	}
	return rowsChanged(res)
}

// =============================================================================
// Workflow table
// =============================================================================

// InsertWorkflow stores a new correlation record.
func (s *Store) InsertWorkflow(ctx context.Context, wf *core.Workflow) error {
	output, err := encodeOutput(wf.Output)
	if err != nil {
		return err
	}
	var resolvedAt sql.NullInt64
	if wf.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: core.UnixMilli(*wf.ResolvedAt), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO workflows (namespace, workflow_id, status, output, created_at, resolved_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), s.names.Workflows, wf.WorkflowID, string(wf.Status), output, core.UnixMilli(wf.CreatedAt), resolvedAt,
		core.UnixMilli(wf.ExpiresAt))
	if err != nil {
		return fmt.Errorf("inserting workflow %s: %w", wf.WorkflowID, err)
	}
	return nil
}

// ResolveWorkflow transitions a pending record that has not expired at now.
func (s *Store) ResolveWorkflow(ctx context.Context, workflowID string, output core.Payload, resolvedAt, now time.Time) error {
	encoded, err := encodeOutput(output)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE workflows SET status = ?, output = ?, resolved_at = ?
		WHERE namespace = ? AND workflow_id = ? AND status = ?
		  AND (expires_at = 0 OR expires_at >= ?)
	`), string(core.WorkflowStatusResolved), encoded, core.UnixMilli(resolvedAt),
		s.names.Workflows, workflowID, string(core.WorkflowStatusPending), core.UnixMilli(now))
	if err != nil {
		return fmt.Errorf("resolving workflow %s: %w", workflowID, err)
	}
	return rowsChanged(res)
}

// GetWorkflow returns the stored record, or nil when none exists.
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (*core.Workflow, error) {
	var (
		wf         core.Workflow
		status     string
		output     sql.NullString
		createdAt  int64
		resolvedAt sql.NullInt64
		expiresAt  int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT workflow_id, status, output, created_at, resolved_at, expires_at
		FROM workflows WHERE namespace = ? AND workflow_id = ?
	`), s.names.Workflows, workflowID).Scan(&wf.WorkflowID, &status, &output, &createdAt, &resolvedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying workflow %s: %w", workflowID, err)
	}

	wf.Status = core.WorkflowStatus(status)
	wf.CreatedAt = core.FromUnixMilli(createdAt)
	wf.ExpiresAt = core.FromUnixMilli(expiresAt)
	if resolvedAt.Valid {
		t := core.FromUnixMilli(resolvedAt.Int64)
		wf.ResolvedAt = &t
	}
	if output.Valid && output.String != "" {
		if err := json.Unmarshal([]byte(output.String), &wf.Output); err != nil {
			return nil, fmt.Errorf("decoding output of workflow %s: %w", workflowID, err)
		}
	}
	return &wf, nil
}

func encodeOutput(p core.Payload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding workflow output: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Verify that Store implements the table ports.
var (
	_ core.ActorTable    = (*Store)(nil)
	_ core.LockTable     = (*Store)(nil)
	_ core.WorkflowTable = (*Store)(nil)
)
