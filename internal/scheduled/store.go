// Package scheduled persists time-gated notifications. Rows become dispatch
// candidates once deliver_at passes; the unique idempotency key makes the
// insert safe against duplicate broker deliveries.
package scheduled

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nebulateam/nebula/internal/relay"
)

// Notification is one scheduled push waiting for its deliver_at instant.
type Notification struct {
	DeliverAt      time.Time
	Type           string
	UserID         int64
	IdempotencyKey string
	Payload        []byte
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert schedules a notification keyed by its idempotency key. It reports
// false with a nil error when a row with the same key already exists, so a
// redelivered message resolves to a successful no-op.
func (s *Store) Insert(ctx context.Context, n Notification) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_notifications(deliver_at, notification_type, user_id, idempotency_key, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT ON CONSTRAINT uq_scheduled_idempotency_key DO NOTHING`,
		n.DeliverAt, n.Type, n.UserID, n.IdempotencyKey, string(n.Payload))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Lease starts a transaction and locks up to limit due rows, skipping rows
// already leased by a concurrent relay instance.
func (s *Store) Lease(ctx context.Context, limit int) (relay.Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, notification_type, payload,
		       notification_type || ':' || idempotency_key,
		       deliver_at
		FROM scheduled_notifications
		WHERE deliver_at <= now()
		ORDER BY deliver_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1`,
		limit)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	defer rows.Close()

	var leased []relay.Row
	for rows.Next() {
		var r relay.Row
		if err := rows.Scan(&r.ID, &r.DispatchKey, &r.Payload, &r.MessageID, &r.CreatedAt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		leased = append(leased, r)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	return &batch{tx: tx, rows: leased}, nil
}

// Depth returns the number of pending scheduled rows, due or not.
func (s *Store) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_notifications`).Scan(&n)
	return n, err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the duplicate signal distinguishable from other storage errors.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type batch struct {
	tx   pgx.Tx
	rows []relay.Row
}

func (b *batch) Rows() []relay.Row { return b.rows }

func (b *batch) Complete(ctx context.Context, publishedIDs []int64) error {
	if len(publishedIDs) > 0 {
		if _, err := b.tx.Exec(ctx, `
			DELETE FROM scheduled_notifications WHERE id = ANY($1)`,
			publishedIDs); err != nil {
			_ = b.tx.Rollback(ctx)
			return err
		}
	}
	return b.tx.Commit(ctx)
}

func (b *batch) Abort(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}
