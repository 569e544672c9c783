package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

const (
	DefaultDedupWindow = 5 * time.Minute
	DefaultMaxReceives = 3
)

// Queue is an ordered queue stored in queue_messages. Only the oldest live
// message of a group is ever delivered, so a group stays blocked while its
// head is in flight.
type Queue struct {
	store       *Store
	dedupWindow time.Duration
	maxReceives int
	now         func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDedupWindow sets how long a dedup id suppresses duplicates.
func WithDedupWindow(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.dedupWindow = d
	}
}

// WithMaxReceives sets the receive count after which a message is
// dead-lettered. Zero disables dead-lettering.
func WithMaxReceives(n int) QueueOption {
	return func(q *Queue) {
		q.maxReceives = n
	}
}

// WithClock replaces the queue's time source.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a queue sharing the store's connection.
func NewQueue(store *Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store:       store,
		dedupWindow: DefaultDedupWindow,
		maxReceives: DefaultMaxReceives,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) ns() string {
	return q.store.names.Queue
}

// Enqueue appends msg unless its dedup id was seen within the window.
func (q *Queue) Enqueue(ctx context.Context, msg core.Message) error {
	s := q.store
	now := q.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`
		DELETE FROM queue_dedup WHERE namespace = ? AND expires_at < ?
	`), q.ns(), core.UnixMilli(now)); err != nil {
		return fmt.Errorf("pruning dedup ids: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO queue_dedup (namespace, dedup_id, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (namespace, dedup_id) DO NOTHING
	`), q.ns(), msg.DedupID, core.UnixMilli(now.Add(q.dedupWindow)))
	if err != nil {
		return fmt.Errorf("recording dedup id: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	} else if n == 0 {
		// Duplicate within the window: accepted, nothing stored.
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO queue_messages (namespace, group_key, dedup_id, body, visible_at, receive_count, dead, enqueued_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)
	`), q.ns(), msg.GroupKey, msg.DedupID, msg.Body, core.UnixMilli(now), core.UnixMilli(now)); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing enqueue: %w", err)
	}
	return nil
}

type headRow struct {
	seq          int64
	msg          core.Message
	receiveCount int
}

// Receive returns the visible head of up to max groups and hides each one
// for visibility.
func (q *Queue) Receive(ctx context.Context, max int, visibility time.Duration) ([]core.Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	s := q.store
	now := core.UnixMilli(q.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if q.maxReceives > 0 {
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE queue_messages SET dead = 1
			WHERE namespace = ? AND dead = 0 AND receive_count >= ? AND visible_at <= ?
		`), q.ns(), q.maxReceives, now); err != nil {
			return nil, fmt.Errorf("dead-lettering messages: %w", err)
		}
	}

	heads, err := selectHeads(ctx, tx, s, q.ns(), now, max)
	if err != nil {
		return nil, err
	}

	out := make([]core.Delivery, 0, len(heads))
	visibleAt := now + visibility.Milliseconds()
	for _, h := range heads {
		receipt := uuid.NewString()
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE queue_messages
			SET visible_at = ?, receipt = ?, receive_count = receive_count + 1
			WHERE seq = ?
		`), visibleAt, receipt, h.seq); err != nil {
			return nil, fmt.Errorf("hiding message %d: %w", h.seq, err)
		}
		out = append(out, core.Delivery{
			Message:      h.msg,
			Receipt:      receipt,
			ReceiveCount: h.receiveCount + 1,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing receive: %w", err)
	}
	return out, nil
}

func selectHeads(ctx context.Context, tx *sql.Tx, s *Store, ns string, now int64, max int) ([]headRow, error) {
	rows, err := tx.QueryContext(ctx, s.q(`
		SELECT m.seq, m.group_key, m.dedup_id, m.body, m.receive_count
		FROM queue_messages m
		WHERE m.namespace = ? AND m.dead = 0 AND m.visible_at <= ?
		  AND m.seq = (
			SELECT MIN(h.seq) FROM queue_messages h
			WHERE h.namespace = m.namespace AND h.group_key = m.group_key AND h.dead = 0
		  )
		ORDER BY m.seq
		LIMIT ?`)+s.dialect.LockRows, ns, now, max)
	if err != nil {
		return nil, fmt.Errorf("selecting group heads: %w", err)
	}
	defer rows.Close()

	var heads []headRow
	for rows.Next() {
		var h headRow
		if err := rows.Scan(&h.seq, &h.msg.GroupKey, &h.msg.DedupID, &h.msg.Body, &h.receiveCount); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return heads, nil
}

// Ack deletes the message holding receipt. Unknown receipts are ignored.
func (q *Queue) Ack(ctx context.Context, receipt string) error {
	s := q.store
	if _, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM queue_messages WHERE namespace = ? AND receipt = ?
	`), q.ns(), receipt); err != nil {
		return fmt.Errorf("acknowledging message: %w", err)
	}
	return nil
}

// Depth reports the number of live and dead-lettered messages.
func (q *Queue) Depth(ctx context.Context) (live, dead int, err error) {
	s := q.store
	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT
			COALESCE(SUM(CASE WHEN dead = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN dead = 1 THEN 1 ELSE 0 END), 0)
		FROM queue_messages WHERE namespace = ?
	`), q.ns()).Scan(&live, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("counting messages: %w", err)
	}
	return live, dead, nil
}

// Verify that Queue implements core.Queue.
var _ core.Queue = (*Queue)(nil)
