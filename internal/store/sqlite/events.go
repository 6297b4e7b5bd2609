package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/models"
)

const eventColumns = `id, title, description, category, event_date, event_time, location, image, capacity, price, created_by, status, created_at, updated_at`

func scanEvent(row scanner) (*models.Event, error) {
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
	id, now := uuid.New(), s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Title, e.Description, e.Category, e.Date.UTC(), e.Time, e.Location, e.Image,
		e.Capacity, e.Price, e.CreatedBy, e.Status, now, now)
	if err != nil {
		return err
	}
	e.ID, e.CreatedAt, e.UpdatedAt = id, now, now
	return nil
}

// GetEvent implements events.Store.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.CreatedBy != nil {
		conds = append(conds, "created_by = ?")
		args = append(args, *filter.CreatedBy)
	}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY event_date ASC, created_at ASC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
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

// UpdateEvent implements events.Store. The read-modify-write runs in one
// transaction on the single connection, so nothing interleaves with it.
func (s *Store) UpdateEvent(ctx context.Context, id uuid.UUID, apply func(*models.Event) error) (*models.Event, error) {
	var out *models.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t := &txn{tx: tx, now: s.now}
		e, err := scanEvent(t.tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return events.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := apply(e); err != nil {
			return err
		}
		occupied, err := t.Occupancy(ctx, id, uuid.Nil)
		if err != nil {
			return err
		}
		if err := events.CheckCapacity(e, occupied); err != nil {
			return err
		}
		now := s.now()
		res, err := t.tx.ExecContext(ctx,
			`UPDATE events SET title = ?, description = ?, category = ?, event_date = ?, event_time = ?,
				location = ?, image = ?, capacity = ?, price = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			e.Title, e.Description, e.Category, e.Date.UTC(), e.Time, e.Location, e.Image,
			e.Capacity, e.Price, e.Status, now, id)
		if err := affected(res, err, events.ErrNotFound); err != nil {
			return err
		}
		e.ID, e.UpdatedAt = id, now
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return affected(res, err, events.ErrNotFound)
}
