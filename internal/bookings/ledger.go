package bookings

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/models"
)

// Availability is the public seat picture of an event.
type Availability struct {
	EventID        uuid.UUID `json:"event_id"`
	TotalBookings  int       `json:"total_bookings"`
	TotalAttendees int       `json:"total_attendees"`
	Capacity       *int      `json:"capacity"`
	AvailableSeats *int      `json:"available_seats"`
	IsUnlimited    bool      `json:"is_unlimited"`
}

// occupancy reads the committed occupancy of eventID, excluding one booking.
func occupancy(ctx context.Context, l Ledger, eventID, exclude uuid.UUID) (int, error) {
	n, err := l.Occupancy(ctx, eventID, exclude)
	if err != nil {
		return 0, fmt.Errorf("read occupancy: %w", err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// availability builds the seat picture of ev from the ledger.
func availability(ctx context.Context, l Ledger, ev *models.Event) (*Availability, error) {
	t, err := l.Tally(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("tally bookings: %w", err)
	}
	a := &Availability{
		EventID:        ev.ID,
		TotalBookings:  t.Bookings,
		TotalAttendees: t.Seats,
		IsUnlimited:    ev.Unlimited(),
	}
	if ev.Capacity != nil {
		capacity := *ev.Capacity
		left := capacity - t.Seats
		if left < 0 {
			left = 0
		}
		a.Capacity = &capacity
		a.AvailableSeats = &left
	}
	return a, nil
}
