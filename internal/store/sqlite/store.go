// Package sqlite implements the event and booking stores on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
)

// Store persists events and bookings in SQLite. The handle must be
// limited to a single connection (see database.NewSQLite): every
// transaction then runs alone, which is what serializes admissions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a store on db.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ bookings.Store = (*Store)(nil)
	_ events.Store   = (*Store)(nil)
)

// WithEventLock implements bookings.Store. eventID is not needed for
// locking: the single connection admits one transaction at a time.
func (s *Store) WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(bookings.Tx) error) error {
	return s.inTx(ctx, fn)
}

// View implements bookings.Store.
func (s *Store) View(ctx context.Context, fn func(bookings.Tx) error) error {
	return s.inTx(ctx, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(bookings.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&txn{tx: tx, now: s.now})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
