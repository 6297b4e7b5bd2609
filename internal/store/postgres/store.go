// Package postgres implements the event and booking stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
)

const uniqueViolation = "23505"

// Store persists events and bookings in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ bookings.Store = (*Store)(nil)
	_ events.Store   = (*Store)(nil)
)

// WithEventLock implements bookings.Store. It locks the event row with
// SELECT ... FOR UPDATE, so concurrent admissions and event updates for
// the same event queue behind each other until commit or rollback. When
// the event row is gone a transaction-scoped advisory lock on the id
// stands in for the row lock.
func (s *Store) WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(bookings.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, eventID.String()); err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lock event row: %w", err)
		}
		return fn(&txn{tx: tx})
	})
}

// View implements bookings.Store.
func (s *Store) View(ctx context.Context, fn func(bookings.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&txn{tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
