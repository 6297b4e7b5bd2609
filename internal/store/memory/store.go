// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/models"
)

var errReadOnly = errors.New("memory: write in read-only view")

// Store keeps events and bookings in maps. Admission for one event is
// serialized by a per-event lock; different events proceed in parallel.
type Store struct {
	mu       sync.RWMutex
	events   map[uuid.UUID]models.Event
	bookings map[uuid.UUID]models.Booking

	locksMu sync.Mutex
	locks   map[uuid.UUID]*eventLock

	now func() time.Time
}

// eventLock is a context-aware mutex shared by every waiter on one event.
type eventLock struct {
	ch   chan struct{}
	refs int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		events:   make(map[uuid.UUID]models.Event),
		bookings: make(map[uuid.UUID]models.Booking),
		locks:    make(map[uuid.UUID]*eventLock),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ bookings.Store = (*Store)(nil)
	_ events.Store   = (*Store)(nil)
)

func (s *Store) acquire(ctx context.Context, eventID uuid.UUID) (func(), error) {
	s.locksMu.Lock()
	l := s.locks[eventID]
	if l == nil {
		l = &eventLock{ch: make(chan struct{}, 1)}
		s.locks[eventID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	release := func() {
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, eventID)
		}
		s.locksMu.Unlock()
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}

// WithEventLock implements bookings.Store.
func (s *Store) WithEventLock(ctx context.Context, eventID uuid.UUID, fn func(bookings.Tx) error) error {
	unlock, err := s.acquire(ctx, eventID)
	if err != nil {
		return err
	}
	defer unlock()

	t := &tx{s: s, writable: true, staged: make(map[uuid.UUID]*models.Booking)}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// View implements bookings.Store.
func (s *Store) View(ctx context.Context, fn func(bookings.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{s: s})
}

// ListBookings implements bookings.Store.
func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	list := make([]models.Booking, 0)
	for _, b := range s.bookings {
		if filter.UserID != nil && b.UserID != *filter.UserID {
			continue
		}
		if filter.EventID != nil && b.EventID != *filter.EventID {
			continue
		}
		list = append(list, b)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.String() > list[j].ID.String()
	})
	return list, nil
}

// CreateEvent implements events.Store.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	now := s.now()
	e.ID = uuid.New()
	e.CreatedAt, e.UpdatedAt = now, now
	s.mu.Lock()
	s.events[e.ID] = cloneEvent(*e)
	s.mu.Unlock()
	return nil
}

// GetEvent implements events.Store.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	e, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, events.ErrNotFound
	}
	e = cloneEvent(e)
	return &e, nil
}

// ListEvents implements events.Store. Events are ordered by date, soonest first.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	s.mu.RLock()
	list := make([]models.Event, 0)
	for _, e := range s.events {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.CreatedBy != nil && e.CreatedBy != *filter.CreatedBy {
			continue
		}
		list = append(list, cloneEvent(e))
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

// UpdateEvent implements events.Store. It holds the event lock, so a
// capacity change never lands in the middle of an admission.
func (s *Store) UpdateEvent(ctx context.Context, id uuid.UUID, apply func(*models.Event) error) (*models.Event, error) {
	unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.RLock()
	cur, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, events.ErrNotFound
	}
	next := cloneEvent(cur)
	if err := apply(&next); err != nil {
		return nil, err
	}
	next.ID, next.CreatedBy, next.CreatedAt = cur.ID, cur.CreatedBy, cur.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	var occupied int
	for _, b := range s.bookings {
		if b.EventID == id {
			occupied += b.Seats()
		}
	}
	if err := events.CheckCapacity(&next, occupied); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.events[id] = next
	out := cloneEvent(next)
	return &out, nil
}

// DeleteEvent implements events.Store. Bookings of the event are kept.
func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func cloneEvent(e models.Event) models.Event {
	if e.Capacity != nil {
		c := *e.Capacity
		e.Capacity = &c
	}
	return e
}

// tx overlays staged booking writes on the committed maps. A nil entry
// in staged marks a deletion.
type tx struct {
	s        *Store
	writable bool
	staged   map[uuid.UUID]*models.Booking
}

func (t *tx) commit() {
	if len(t.staged) == 0 {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, b := range t.staged {
		if b == nil {
			delete(t.s.bookings, id)
			continue
		}
		t.s.bookings[id] = *b
	}
}

func (t *tx) lookup(id uuid.UUID) (models.Booking, bool) {
	if b, ok := t.staged[id]; ok {
		if b == nil {
			return models.Booking{}, false
		}
		return *b, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bookings[id]
	return b, ok
}

// each calls fn for every booking of eventID visible to the transaction.
func (t *tx) each(eventID uuid.UUID, fn func(models.Booking)) {
	t.s.mu.RLock()
	for id, b := range t.s.bookings {
		if _, ok := t.staged[id]; ok || b.EventID != eventID {
			continue
		}
		fn(b)
	}
	t.s.mu.RUnlock()
	for _, b := range t.staged {
		if b != nil && b.EventID == eventID {
			fn(*b)
		}
	}
}

func (t *tx) Occupancy(ctx context.Context, eventID, exclude uuid.UUID) (int, error) {
	var seats int
	t.each(eventID, func(b models.Booking) {
		if b.ID != exclude {
			seats += b.Seats()
		}
	})
	return seats, nil
}

func (t *tx) Tally(ctx context.Context, eventID uuid.UUID) (bookings.Tally, error) {
	var out bookings.Tally
	t.each(eventID, func(b models.Booking) {
		if b.Status.Active() {
			out.Bookings++
			out.Seats += b.Seats()
		}
	})
	return out, nil
}

func (t *tx) Event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	t.s.mu.RLock()
	e, ok := t.s.events[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, bookings.ErrEventNotFound
	}
	e = cloneEvent(e)
	return &e, nil
}

func (t *tx) Booking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, ok := t.lookup(id)
	if !ok {
		return nil, bookings.ErrBookingNotFound
	}
	return &b, nil
}

func (t *tx) BookingFor(ctx context.Context, userID, eventID uuid.UUID) (*models.Booking, error) {
	var found *models.Booking
	t.each(eventID, func(b models.Booking) {
		if b.UserID == userID && found == nil {
			found = &b
		}
	})
	return found, nil
}

func (t *tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if !t.writable {
		return errReadOnly
	}
	if existing, _ := t.BookingFor(ctx, b.UserID, b.EventID); existing != nil {
		return bookings.ErrDuplicateBooking
	}
	now := t.s.now()
	b.ID = uuid.New()
	b.CreatedAt, b.UpdatedAt = now, now
	row := *b
	t.staged[b.ID] = &row
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, id uuid.UUID, attendees int, status models.BookingStatus) error {
	if !t.writable {
		return errReadOnly
	}
	b, ok := t.lookup(id)
	if !ok {
		return bookings.ErrBookingNotFound
	}
	b.Attendees = attendees
	b.Status = status
	b.UpdatedAt = t.s.now()
	t.staged[id] = &b
	return nil
}

func (t *tx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.lookup(id); !ok {
		return bookings.ErrBookingNotFound
	}
	t.staged[id] = nil
	return nil
}
