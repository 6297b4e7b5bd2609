package bookings

import "errors"

// Validation errors: rejected before storage is touched.
var (
	ErrInvalidAttendees = errors.New("attendees must be a positive integer")
	ErrInvalidStatus    = errors.New("status must be confirmed, pending or cancelled")
)

// Not-found errors.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")
)

// Authorization errors.
var (
	ErrForbidden   = errors.New("not allowed to manage this booking")
	ErrSelfBooking = errors.New("organizers cannot book their own event")
)

// Conflict errors. A request rejected with one of these left storage untouched.
var (
	ErrDuplicateBooking = errors.New("event already booked by this user")
	ErrCapacityExceeded = errors.New("event capacity would be exceeded")
)
