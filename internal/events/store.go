package events

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/models"
)

var (
	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrCapacityBelowBooked is returned when an update would set the
	// capacity below the seats already held by active bookings.
	ErrCapacityBelowBooked = errors.New("capacity cannot be lower than the seats already booked")
)

// Store is event persistence.
type Store interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	// GetEvent returns ErrNotFound when the event does not exist.
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	// UpdateEvent loads the event under its admission lock, lets apply
	// modify it and saves the result. An error from apply aborts the
	// update. ErrCapacityBelowBooked is returned when the new capacity
	// is below the seats already booked.
	UpdateEvent(ctx context.Context, id uuid.UUID, apply func(*models.Event) error) (*models.Event, error)
	// DeleteEvent removes the event only; its bookings are left in place.
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

// CheckCapacity reports ErrCapacityBelowBooked when e has a capacity
// lower than occupied seats.
func CheckCapacity(e *models.Event, occupied int) error {
	if e.Capacity != nil && *e.Capacity < occupied {
		return ErrCapacityBelowBooked
	}
	return nil
}
