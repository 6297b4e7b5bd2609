package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/models"
)

func newEvent(t *testing.T, s *Store, capacity *int) *models.Event {
	t.Helper()
	e := &models.Event{
		Title:     "Go meetup",
		Date:      time.Now().Add(48 * time.Hour),
		Location:  "Berlin",
		Capacity:  capacity,
		CreatedBy: uuid.New(),
	}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func insert(t *testing.T, s *Store, eventID, userID uuid.UUID, attendees int, status models.BookingStatus) *models.Booking {
	t.Helper()
	b := &models.Booking{EventID: eventID, UserID: userID, Attendees: attendees, Status: status}
	err := s.WithEventLock(context.Background(), eventID, func(tx bookings.Tx) error {
		return tx.InsertBooking(context.Background(), b)
	})
	if err != nil {
		t.Fatalf("InsertBooking: %v", err)
	}
	return b
}

func TestOccupancyCountsActiveSeats(t *testing.T) {
	ctx := context.Background()
	s := New()
	ev := newEvent(t, s, nil)

	a := insert(t, s, ev.ID, uuid.New(), 3, models.BookingConfirmed)
	insert(t, s, ev.ID, uuid.New(), 2, models.BookingPending)
	insert(t, s, ev.ID, uuid.New(), 4, models.BookingCancelled)
	insert(t, s, ev.ID, uuid.New(), 0, models.BookingConfirmed) // legacy row, one seat
	insert(t, s, uuid.New(), uuid.New(), 7, models.BookingConfirmed)

	err := s.View(ctx, func(tx bookings.Tx) error {
		occ, err := tx.Occupancy(ctx, ev.ID, uuid.Nil)
		if err != nil {
			return err
		}
		if occ != 6 {
			t.Errorf("occupancy = %d, want 6", occ)
		}
		occ, err = tx.Occupancy(ctx, ev.ID, a.ID)
		if err != nil {
			return err
		}
		if occ != 3 {
			t.Errorf("occupancy excluding %s = %d, want 3", a.ID, occ)
		}
		tally, err := tx.Tally(ctx, ev.ID)
		if err != nil {
			return err
		}
		if tally.Bookings != 3 || tally.Seats != 6 {
			t.Errorf("tally = %+v, want {3 6}", tally)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestWithEventLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	ev := newEvent(t, s, nil)
	boom := errors.New("boom")

	err := s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		b := &models.Booking{EventID: ev.ID, UserID: uuid.New(), Attendees: 2, Status: models.BookingConfirmed}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		occ, err := tx.Occupancy(ctx, ev.ID, uuid.Nil)
		if err != nil {
			return err
		}
		if occ != 2 {
			t.Errorf("staged occupancy = %d, want 2", occ)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	list, _ := s.ListBookings(ctx, models.BookingFilter{EventID: &ev.ID})
	if len(list) != 0 {
		t.Fatalf("rolled back insert is visible: %+v", list)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	ev := newEvent(t, s, nil)
	user := uuid.New()
	insert(t, s, ev.ID, user, 1, models.BookingCancelled)

	err := s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		return tx.InsertBooking(ctx, &models.Booking{EventID: ev.ID, UserID: user, Attendees: 1, Status: models.BookingConfirmed})
	})
	if !errors.Is(err, bookings.ErrDuplicateBooking) {
		t.Fatalf("err = %v, want ErrDuplicateBooking", err)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	ev := newEvent(t, s, nil)
	err := s.View(ctx, func(tx bookings.Tx) error {
		return tx.InsertBooking(ctx, &models.Booking{EventID: ev.ID, UserID: uuid.New(), Attendees: 1})
	})
	if err == nil {
		t.Fatal("expected write in View to fail")
	}
}

func TestWithEventLockSerializesSameEvent(t *testing.T) {
	ctx := context.Background()
	s := New()
	ev := newEvent(t, s, nil)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithEventLock(ctx, ev.ID, func(bookings.Tx) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
	if len(s.locks) != 0 {
		t.Fatalf("lock table not drained: %d entries", len(s.locks))
	}
}

func TestWithEventLockHonoursContext(t *testing.T) {
	s := New()
	ev := newEvent(t, s, nil)
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithEventLock(context.Background(), ev.ID, func(bookings.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithEventLock(ctx, ev.ID, func(bookings.Tx) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestEventCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	capacity := 10
	ev := newEvent(t, s, &capacity)

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	*got.Capacity = 99
	again, _ := s.GetEvent(ctx, ev.ID)
	if *again.Capacity != 10 {
		t.Fatalf("store shares capacity pointer with caller")
	}

	_, err = s.UpdateEvent(ctx, ev.ID, func(e *models.Event) error {
		e.Title = "Renamed"
		e.Capacity = nil
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	updated, _ := s.GetEvent(ctx, ev.ID)
	if updated.Title != "Renamed" || !updated.Unlimited() {
		t.Fatalf("update not applied: %+v", updated)
	}

	b := insert(t, s, ev.ID, uuid.New(), 1, models.BookingConfirmed)
	if err := s.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := s.GetEvent(ctx, ev.ID); !errors.Is(err, events.ErrNotFound) {
		t.Fatalf("GetEvent after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteEvent(ctx, ev.ID); !errors.Is(err, events.ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
	list, _ := s.ListBookings(ctx, models.BookingFilter{EventID: &ev.ID})
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("booking should survive event delete, got %+v", list)
	}
}

func TestUpdateEventCapacityFloor(t *testing.T) {
	ctx := context.Background()
	s := New()
	capacity := 10
	ev := newEvent(t, s, &capacity)
	insert(t, s, ev.ID, uuid.New(), 4, models.BookingConfirmed)
	insert(t, s, ev.ID, uuid.New(), 2, models.BookingPending)
	insert(t, s, ev.ID, uuid.New(), 5, models.BookingCancelled)

	shrink := func(n int) error {
		_, err := s.UpdateEvent(ctx, ev.ID, func(e *models.Event) error {
			e.Capacity = &n
			return nil
		})
		return err
	}
	if err := shrink(5); !errors.Is(err, events.ErrCapacityBelowBooked) {
		t.Fatalf("capacity 5 under 6 booked err = %v, want ErrCapacityBelowBooked", err)
	}
	got, _ := s.GetEvent(ctx, ev.ID)
	if *got.Capacity != 10 {
		t.Fatalf("rejected update changed capacity to %d", *got.Capacity)
	}
	if err := shrink(6); err != nil {
		t.Fatalf("capacity equal to booked seats: %v", err)
	}

	_, err := s.UpdateEvent(ctx, uuid.New(), func(*models.Event) error { return nil })
	if !errors.Is(err, events.ErrNotFound) {
		t.Fatalf("update of missing event err = %v, want ErrNotFound", err)
	}
}

func TestListEventsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	for i := 0; i < 5; i++ {
		e := &models.Event{
			Title:     "e",
			Date:      time.Now().Add(time.Duration(5-i) * time.Hour),
			Location:  "x",
			Category:  "music",
			CreatedBy: owner,
		}
		if i%2 == 0 {
			e.Category = "tech"
		}
		if err := s.CreateEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tech, _ := s.ListEvents(ctx, models.EventFilter{Category: "tech"})
	if len(tech) != 3 {
		t.Fatalf("tech events = %d, want 3", len(tech))
	}
	for i := 1; i < len(tech); i++ {
		if tech[i].Date.Before(tech[i-1].Date) {
			t.Fatal("events not sorted by date")
		}
	}
	limited, _ := s.ListEvents(ctx, models.EventFilter{CreatedBy: &owner, Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limited = %d, want 2", len(limited))
	}
}
