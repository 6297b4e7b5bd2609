package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/models"
)

// Service is the booking lifecycle surface used by the HTTP layer. Reads
// go straight to the store; every mutation goes through the Controller.
type Service struct {
	store      Store
	controller *Controller
}

// NewService creates a booking lifecycle service.
func NewService(store Store, controller *Controller) *Service {
	return &Service{store: store, controller: controller}
}

// CreateInput is a request to book an event.
type CreateInput struct {
	EventID   uuid.UUID
	Attendees *int // defaults to 1
}

// UpdateInput is a request to change a booking.
type UpdateInput struct {
	Attendees *int
	Status    *string
}

// ListInput narrows a booking listing. All is honoured for admins only.
type ListInput struct {
	EventID *uuid.UUID
	All     bool
}

// Create books an event for the caller.
func (s *Service) Create(ctx context.Context, caller models.Caller, in CreateInput) (*models.Booking, error) {
	if in.EventID == uuid.Nil {
		return nil, ErrEventNotFound
	}
	attendees := 1
	if in.Attendees != nil {
		attendees = *in.Attendees
	}
	if attendees < 1 {
		return nil, ErrInvalidAttendees
	}
	return s.controller.AdmitCreate(ctx, caller, in.EventID, attendees)
}

// Update changes the attendee count and/or status of a booking.
func (s *Service) Update(ctx context.Context, caller models.Caller, id uuid.UUID, in UpdateInput) (*models.Booking, error) {
	var ch Change
	if in.Attendees != nil {
		if *in.Attendees < 1 {
			return nil, ErrInvalidAttendees
		}
		ch.Attendees = in.Attendees
	}
	if in.Status != nil {
		st := models.BookingStatus(*in.Status)
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
		ch.Status = &st
	}
	return s.controller.AdmitChange(ctx, caller, id, ch)
}

// Cancel deletes a booking.
func (s *Service) Cancel(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	return s.controller.Cancel(ctx, caller, id)
}

// Get returns one booking with its event summary.
func (s *Service) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.BookingView, error) {
	var view *models.BookingView
	err := s.store.View(ctx, func(tx Tx) error {
		b, err := tx.Booking(ctx, id)
		if err != nil {
			return err
		}
		if !caller.CanManage(b.UserID) {
			return ErrForbidden
		}
		summary, err := summarize(ctx, tx, b.EventID)
		if err != nil {
			return err
		}
		view = &models.BookingView{Booking: *b, Event: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// List returns the caller's bookings, or every booking for an admin
// asking for all of them.
func (s *Service) List(ctx context.Context, caller models.Caller, in ListInput) ([]models.BookingView, error) {
	filter := models.BookingFilter{EventID: in.EventID}
	if !(in.All && caller.IsAdmin()) {
		uid := caller.ID
		filter.UserID = &uid
	}
	list, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	out := make([]models.BookingView, 0, len(list))
	err = s.store.View(ctx, func(tx Tx) error {
		seen := make(map[uuid.UUID]*models.EventSummary)
		for _, b := range list {
			summary, ok := seen[b.EventID]
			if !ok {
				var err error
				summary, err = summarize(ctx, tx, b.EventID)
				if err != nil {
					return err
				}
				seen[b.EventID] = summary
			}
			out = append(out, models.BookingView{Booking: b, Event: summary})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListForEvent returns every booking of an event, for organizers and exports.
func (s *Service) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Booking, error) {
	list, err := s.store.ListBookings(ctx, models.BookingFilter{EventID: &eventID})
	if err != nil {
		return nil, fmt.Errorf("list event bookings: %w", err)
	}
	if list == nil {
		list = []models.Booking{}
	}
	return list, nil
}

// Availability returns the seat picture of an event.
func (s *Service) Availability(ctx context.Context, eventID uuid.UUID) (*Availability, error) {
	var a *Availability
	err := s.store.View(ctx, func(tx Tx) error {
		ev, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		a, err = availability(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// summarize returns the event summary for a booking, or nil when the
// event has been deleted.
func summarize(ctx context.Context, tx Tx, eventID uuid.UUID) (*models.EventSummary, error) {
	ev, err := tx.Event(ctx, eventID)
	if errors.Is(err, ErrEventNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev.Summary(), nil
}
