package bookings

import (
	"context"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/models"
)

// Ledger reports committed occupancy for an event. Values are computed
// from the booking records on every call and never cached.
type Ledger interface {
	// Occupancy sums the seats held by active bookings of eventID,
	// skipping the booking exclude (uuid.Nil skips nothing).
	Occupancy(ctx context.Context, eventID, exclude uuid.UUID) (int, error)
	// Tally returns the active booking count and seat total for eventID.
	Tally(ctx context.Context, eventID uuid.UUID) (Tally, error)
}

// Tally is an event's committed occupancy.
type Tally struct {
	Bookings int
	Seats    int
}

// Tx is the storage view an admission decision runs against. Everything
// done through one Tx commits or rolls back as a unit.
type Tx interface {
	Ledger

	// Event returns ErrEventNotFound when the event does not exist.
	Event(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// Booking returns ErrBookingNotFound when the booking does not exist.
	Booking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// BookingFor returns the booking userID holds for eventID, or nil.
	BookingFor(ctx context.Context, userID, eventID uuid.UUID) (*models.Booking, error)

	// InsertBooking assigns ID and timestamps. It returns
	// ErrDuplicateBooking if the (user, event) pair already exists.
	InsertBooking(ctx context.Context, b *models.Booking) error
	UpdateBooking(ctx context.Context, id uuid.UUID, attendees int, status models.BookingStatus) error
	// DeleteBooking returns ErrBookingNotFound when nothing was deleted.
	DeleteBooking(ctx context.Context, id uuid.UUID) error
}

// Store is the booking storage consumed by the admission controller.
type Store interface {
	// WithEventLock runs fn while holding exclusive admission rights for
	// eventID. No other WithEventLock call for the same event runs
	// concurrently; calls for different events may. The writes made by
	// fn are committed only when fn returns nil.
	WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(Tx) error) error
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	// ListBookings returns bookings matching filter, newest first.
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}
