package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/models"
)

const eventColumns = `id, title, description, category, event_date, event_time, location, image, capacity, price, created_by, status, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.Date, &e.Time, &e.Location, &e.Image,
		&e.Capacity, &e.Price, &e.CreatedBy, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent implements events.Store.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, category, event_date, event_time, location, image, capacity, price, created_by, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return s.pool.QueryRow(ctx, q, e.Title, e.Description, e.Category, e.Date, e.Time, e.Location, e.Image,
		e.Capacity, e.Price, e.CreatedBy, e.Status).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetEvent implements events.Store.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrNotFound
	}
	return e, err
}

// ListEvents implements events.Store. Events are ordered by date, soonest first.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		conds = append(conds, fmt.Sprintf("created_by = $%d", len(args)))
	}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY event_date ASC, created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateEvent implements events.Store. The event row is locked with
// FOR UPDATE for the whole read-modify-write, so it queues with in-flight
// admissions and concurrent updates of the same event.
func (s *Store) UpdateEvent(ctx context.Context, id uuid.UUID, apply func(*models.Event) error) (*models.Event, error) {
	var out *models.Event
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		e, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return events.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event row: %w", err)
		}
		if err := apply(e); err != nil {
			return err
		}
		occupied, err := (&txn{tx: tx}).Occupancy(ctx, id, uuid.Nil)
		if err != nil {
			return fmt.Errorf("read occupancy: %w", err)
		}
		if err := events.CheckCapacity(e, occupied); err != nil {
			return err
		}
		const q = `UPDATE events SET title = $1, description = $2, category = $3, event_date = $4, event_time = $5,
			location = $6, image = $7, capacity = $8, price = $9, status = $10, updated_at = NOW()
			WHERE id = $11
			RETURNING updated_at`
		if err := tx.QueryRow(ctx, q, e.Title, e.Description, e.Category, e.Date, e.Time, e.Location, e.Image,
			e.Capacity, e.Price, e.Status, id).Scan(&e.UpdatedAt); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent implements events.Store. Bookings of the event are kept.
func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}
