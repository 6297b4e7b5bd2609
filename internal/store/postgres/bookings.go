package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/models"
)

const bookingColumns = `id, event_id, user_id, attendees, status, created_at, updated_at`

// seatsExpr counts a legacy row with no attendee count as one seat.
const seatsExpr = `CASE WHEN attendees <= 0 THEN 1 ELSE attendees END`

type txn struct {
	tx pgx.Tx
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	if err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Attendees, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *txn) Occupancy(ctx context.Context, eventID, exclude uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(` + seatsExpr + `), 0) FROM bookings
		WHERE event_id = $1 AND status <> 'cancelled' AND id <> $2`
	var n int
	if err := t.tx.QueryRow(ctx, q, eventID, exclude).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txn) Tally(ctx context.Context, eventID uuid.UUID) (bookings.Tally, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(` + seatsExpr + `), 0) FROM bookings
		WHERE event_id = $1 AND status <> 'cancelled'`
	var out bookings.Tally
	err := t.tx.QueryRow(ctx, q, eventID).Scan(&out.Bookings, &out.Seats)
	return out, err
}

func (t *txn) Event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bookings.ErrEventNotFound
	}
	return e, err
}

func (t *txn) Booking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bookings.ErrBookingNotFound
	}
	return b, err
}

func (t *txn) BookingFor(ctx context.Context, userID, eventID uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 AND event_id = $2`, userID, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (t *txn) InsertBooking(ctx context.Context, b *models.Booking) error {
	const q = `INSERT INTO bookings (event_id, user_id, attendees, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(ctx, q, b.EventID, b.UserID, b.Attendees, b.Status).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return bookings.ErrDuplicateBooking
	}
	return err
}

func (t *txn) UpdateBooking(ctx context.Context, id uuid.UUID, attendees int, status models.BookingStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET attendees = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		attendees, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bookings.ErrBookingNotFound
	}
	return nil
}

func (t *txn) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bookings.ErrBookingNotFound
	}
	return nil
}

// ListBookings implements bookings.Store.
func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		conds = append(conds, fmt.Sprintf("event_id = $%d", len(args)))
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}
