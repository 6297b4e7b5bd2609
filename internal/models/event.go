package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a bookable event. A nil Capacity means unlimited seats.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time,omitempty"` // display time as entered by the organizer, e.g. "18:30"
	Location    string    `json:"location"`
	Image       string    `json:"image,omitempty"`
	Capacity    *int      `json:"capacity"`
	Price       float64   `json:"price"`
	CreatedBy   uuid.UUID `json:"created_by"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unlimited reports whether the event has no capacity bound.
func (e *Event) Unlimited() bool {
	return e.Capacity == nil
}

// EventSummary is the slice of an event embedded in booking responses.
type EventSummary struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Time     string    `json:"time,omitempty"`
	Location string    `json:"location"`
	Image    string    `json:"image,omitempty"`
}

// Summary returns the booking-facing view of the event.
func (e *Event) Summary() *EventSummary {
	return &EventSummary{
		ID:       e.ID,
		Title:    e.Title,
		Date:     e.Date,
		Time:     e.Time,
		Location: e.Location,
		Image:    e.Image,
	}
}

// EventFilter narrows event listings.
type EventFilter struct {
	Category  string
	CreatedBy *uuid.UUID
	Limit     int
}
