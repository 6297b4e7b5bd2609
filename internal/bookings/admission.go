package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/models"
)

// DefaultAdmissionTimeout bounds a single admission once it has started.
const DefaultAdmissionTimeout = 10 * time.Second

// AvailabilityNotifier receives the seat picture of an event after a
// committed booking change.
type AvailabilityNotifier interface {
	AvailabilityChanged(a Availability)
}

// Change is a requested mutation of an existing booking. Nil fields are
// left as they are.
type Change struct {
	Attendees *int
	Status    *models.BookingStatus
}

// Controller is the only writer of bookings. Every create, change and
// cancel runs under the store's per-event lock, so the occupancy read,
// the policy decision and the write form one step for that event.
type Controller struct {
	store    Store
	notifier AvailabilityNotifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewController creates an admission controller. notifier may be nil.
func NewController(store Store, notifier AvailabilityNotifier, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{store: store, notifier: notifier, timeout: DefaultAdmissionTimeout, logger: logger}
}

// detach keeps an admission running to commit or rollback even if the
// request that started it goes away.
func (c *Controller) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}

// AdmitCreate books attendees seats on eventID for the caller.
func (c *Controller) AdmitCreate(ctx context.Context, caller models.Caller, eventID uuid.UUID, attendees int) (*models.Booking, error) {
	if attendees < 1 {
		return nil, ErrInvalidAttendees
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()

	var (
		booking *models.Booking
		snap    *Availability
	)
	err := c.store.WithEventLock(ctx, eventID, func(tx Tx) error {
		ev, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.CreatedBy == caller.ID {
			return ErrSelfBooking
		}
		existing, err := tx.BookingFor(ctx, caller.ID, eventID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateBooking
		}
		occ, err := occupancy(ctx, tx, eventID, uuid.Nil)
		if err != nil {
			return err
		}
		if err := Evaluate(ev.Capacity, occ, attendees).Err(); err != nil {
			c.logger.Debug("booking rejected",
				zap.String("event_id", eventID.String()),
				zap.Int("occupancy", occ),
				zap.Int("attendees", attendees),
				zap.Error(err))
			return err
		}
		b := &models.Booking{
			EventID:   eventID,
			UserID:    caller.ID,
			Attendees: attendees,
			Status:    models.BookingConfirmed,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		snap, err = availability(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("booking admitted",
		zap.String("event_id", eventID.String()),
		zap.String("booking_id", booking.ID.String()),
		zap.Int("attendees", attendees),
		zap.Int("occupancy", snap.TotalAttendees))
	c.notify(snap)
	return booking, nil
}

// AdmitAttendeeChange sets a booking's attendee count.
func (c *Controller) AdmitAttendeeChange(ctx context.Context, caller models.Caller, bookingID uuid.UUID, attendees int) (*models.Booking, error) {
	return c.AdmitChange(ctx, caller, bookingID, Change{Attendees: &attendees})
}

// AdmitChange applies ch to a booking. The booking's own seats are left
// out of the occupancy it is checked against. A change that does not
// grow the seats held (shrinking, cancelling, pending<->confirmed) is
// never rejected for capacity. When the booking's event no longer exists
// the change is applied without a capacity check.
func (c *Controller) AdmitChange(ctx context.Context, caller models.Caller, bookingID uuid.UUID, ch Change) (*models.Booking, error) {
	if ch.Attendees != nil && *ch.Attendees < 1 {
		return nil, ErrInvalidAttendees
	}
	if ch.Status != nil && !ch.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()

	current, err := c.authorize(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}

	var (
		updated *models.Booking
		snap    *Availability
	)
	err = c.store.WithEventLock(ctx, current.EventID, func(tx Tx) error {
		b, err := tx.Booking(ctx, bookingID)
		if err != nil {
			return err
		}
		next := *b
		if ch.Attendees != nil {
			next.Attendees = *ch.Attendees
		}
		if ch.Status != nil {
			next.Status = *ch.Status
		}

		ev, err := tx.Event(ctx, b.EventID)
		switch {
		case errors.Is(err, ErrEventNotFound):
			ev = nil
		case err != nil:
			return err
		}

		if ev != nil && next.Seats() > b.Seats() {
			occ, err := occupancy(ctx, tx, b.EventID, b.ID)
			if err != nil {
				return err
			}
			if err := Evaluate(ev.Capacity, occ, next.Seats()).Err(); err != nil {
				c.logger.Debug("booking change rejected",
					zap.String("booking_id", b.ID.String()),
					zap.Int("occupancy", occ),
					zap.Int("attendees", next.Attendees),
					zap.Error(err))
				return err
			}
		}

		if err := tx.UpdateBooking(ctx, b.ID, next.Attendees, next.Status); err != nil {
			return err
		}
		updated, err = tx.Booking(ctx, b.ID)
		if err != nil {
			return err
		}
		if ev != nil {
			snap, err = availability(ctx, tx, ev)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("booking changed",
		zap.String("booking_id", updated.ID.String()),
		zap.Int("attendees", updated.Attendees),
		zap.String("status", string(updated.Status)))
	c.notify(snap)
	return updated, nil
}

// Cancel removes a booking. Removal only frees seats, so no capacity
// check is made.
func (c *Controller) Cancel(ctx context.Context, caller models.Caller, bookingID uuid.UUID) error {
	ctx, cancel := c.detach(ctx)
	defer cancel()

	current, err := c.authorize(ctx, caller, bookingID)
	if err != nil {
		return err
	}

	var snap *Availability
	err = c.store.WithEventLock(ctx, current.EventID, func(tx Tx) error {
		if err := tx.DeleteBooking(ctx, bookingID); err != nil {
			return err
		}
		ev, err := tx.Event(ctx, current.EventID)
		if errors.Is(err, ErrEventNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap, err = availability(ctx, tx, ev)
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("event_id", current.EventID.String()))
	c.notify(snap)
	return nil
}

// authorize loads a booking and checks the caller owns it or is an admin.
func (c *Controller) authorize(ctx context.Context, caller models.Caller, bookingID uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := c.store.View(ctx, func(tx Tx) error {
		var err error
		b, err = tx.Booking(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(b.UserID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (c *Controller) notify(a *Availability) {
	if c.notifier == nil || a == nil {
		return
	}
	c.notifier.AvailabilityChanged(*a)
}
