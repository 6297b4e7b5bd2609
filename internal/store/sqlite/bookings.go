package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/models"
)

const bookingColumns = `id, event_id, user_id, attendees, status, created_at, updated_at`

// seatsExpr counts a legacy row with no attendee count as one seat.
const seatsExpr = `CASE WHEN attendees <= 0 THEN 1 ELSE attendees END`

type scanner interface {
	Scan(dest ...interface{}) error
}

type txn struct {
	tx  *sql.Tx
	now func() time.Time
}

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	if err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Attendees, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *txn) Occupancy(ctx context.Context, eventID, exclude uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(` + seatsExpr + `), 0) FROM bookings
		WHERE event_id = ? AND status <> 'cancelled' AND id <> ?`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, eventID, exclude).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txn) Tally(ctx context.Context, eventID uuid.UUID) (bookings.Tally, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(` + seatsExpr + `), 0) FROM bookings
		WHERE event_id = ? AND status <> 'cancelled'`
	var out bookings.Tally
	err := t.tx.QueryRowContext(ctx, q, eventID).Scan(&out.Bookings, &out.Seats)
	return out, err
}

func (t *txn) Event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(t.tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookings.ErrEventNotFound
	}
	return e, err
}

func (t *txn) Booking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(t.tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookings.ErrBookingNotFound
	}
	return b, err
}

func (t *txn) BookingFor(ctx context.Context, userID, eventID uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(t.tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? AND event_id = ?`, userID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (t *txn) InsertBooking(ctx context.Context, b *models.Booking) error {
	id, now := uuid.New(), t.now()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, b.EventID, b.UserID, b.Attendees, string(b.Status), now, now)
	if isUniqueViolation(err) {
		return bookings.ErrDuplicateBooking
	}
	if err != nil {
		return err
	}
	b.ID, b.CreatedAt, b.UpdatedAt = id, now, now
	return nil
}

func (t *txn) UpdateBooking(ctx context.Context, id uuid.UUID, attendees int, status models.BookingStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET attendees = ?, status = ?, updated_at = ? WHERE id = ?`,
		attendees, string(status), t.now(), id)
	return affected(res, err, bookings.ErrBookingNotFound)
}

func (t *txn) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return affected(res, err, bookings.ErrBookingNotFound)
}

func affected(res sql.Result, err error, none error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
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
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.EventID != nil {
		conds = append(conds, "event_id = ?")
		args = append(args, *filter.EventID)
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
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
