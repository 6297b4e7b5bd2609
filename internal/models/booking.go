package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingPending   BookingStatus = "pending"
	BookingCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingConfirmed, BookingPending, BookingCancelled:
		return true
	}
	return false
}

// Active reports whether a booking in this status holds seats.
func (s BookingStatus) Active() bool {
	return s != BookingCancelled
}

// Booking is a user's seat claim against an event.
type Booking struct {
	ID        uuid.UUID     `json:"id"`
	EventID   uuid.UUID     `json:"event_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Attendees int           `json:"attendees"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Seats is the number of seats the booking occupies. Legacy rows with a
// missing attendee count hold one seat; cancelled bookings hold none.
func (b *Booking) Seats() int {
	if !b.Status.Active() {
		return 0
	}
	return SeatsFor(b.Attendees)
}

// SeatsFor normalizes a stored attendee count to the seats it occupies.
func SeatsFor(attendees int) int {
	if attendees <= 0 {
		return 1
	}
	return attendees
}

// BookingView is a booking plus the summary of its event. Event is nil
// when the event has been deleted.
type BookingView struct {
	Booking
	Event *EventSummary `json:"event"`
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	UserID  *uuid.UUID
	EventID *uuid.UUID
}
