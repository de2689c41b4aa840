// Package outbox persists user domain events between "domain fact committed"
// and "broker confirmed receipt". Row presence means pending; deletion is the
// sole signal of successful relay.
package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nebulateam/nebula/internal/relay"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertTx queues an event inside the caller's transaction so the domain
// write and the relay obligation commit or roll back together.
func (s *Store) InsertTx(ctx context.Context, tx pgx.Tx, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_outbox_events(event_type, payload)
		VALUES ($1, $2::jsonb)`,
		eventType, string(payload))
	return err
}

// Lease starts a transaction and locks up to limit pending rows, skipping
// rows already leased by a concurrent relay instance. Outbox rows are
// eligible from creation. The downstream message id is derived from the
// event type and the user id carried in the payload.
func (s *Store) Lease(ctx context.Context, limit int) (relay.Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, payload,
		       event_type || '-' || COALESCE(payload->>'user_id', ''),
		       created_at
		FROM user_outbox_events
		ORDER BY created_at, id
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

// Depth returns the number of pending outbox rows.
func (s *Store) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_outbox_events`).Scan(&n)
	return n, err
}

type batch struct {
	tx   pgx.Tx
	rows []relay.Row
}

func (b *batch) Rows() []relay.Row { return b.rows }

func (b *batch) Complete(ctx context.Context, publishedIDs []int64) error {
	if len(publishedIDs) > 0 {
		if _, err := b.tx.Exec(ctx, `
			DELETE FROM user_outbox_events WHERE id = ANY($1)`,
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
