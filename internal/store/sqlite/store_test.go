package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/database"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.MigrateSQLite(ctx, db); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}
	return New(db)
}

func createEvent(t *testing.T, s *Store, capacity *int) *models.Event {
	t.Helper()
	e := &models.Event{
		Title:     "SQLite night",
		Date:      time.Now().Add(24 * time.Hour),
		Location:  "Oslo",
		Capacity:  capacity,
		CreatedBy: uuid.New(),
		Status:    "active",
	}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func TestConcurrentAdmission(t *testing.T) {
	s := openTestStore(t)
	const capacity, callers = 5, 100
	c := capacity
	ev := createEvent(t, s, &c)
	ctrl := bookings.NewController(s, nil, zaptest.NewLogger(t))

	var (
		wg       sync.WaitGroup
		admitted int64
		rejected int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caller := models.Caller{ID: uuid.New(), Role: models.RoleUser}
			_, err := ctrl.AdmitCreate(context.Background(), caller, ev.ID, 1)
			switch {
			case err == nil:
				atomic.AddInt64(&admitted, 1)
			case errors.Is(err, bookings.ErrCapacityExceeded):
				atomic.AddInt64(&rejected, 1)
			default:
				t.Errorf("AdmitCreate: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted != capacity || rejected != callers-capacity {
		t.Fatalf("admitted=%d rejected=%d, want %d and %d", admitted, rejected, capacity, callers-capacity)
	}
}

func TestLedgerAndLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ev := createEvent(t, s, nil)
	user := uuid.New()

	var b models.Booking
	err := s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		b = models.Booking{EventID: ev.ID, UserID: user, Attendees: 4, Status: models.BookingConfirmed}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return err
		}
		legacy := models.Booking{EventID: ev.ID, UserID: uuid.New(), Attendees: 0, Status: models.BookingPending}
		return tx.InsertBooking(ctx, &legacy)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		return tx.InsertBooking(ctx, &models.Booking{EventID: ev.ID, UserID: user, Attendees: 1, Status: models.BookingConfirmed})
	})
	if !errors.Is(err, bookings.ErrDuplicateBooking) {
		t.Fatalf("duplicate insert = %v", err)
	}

	err = s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		if err := tx.UpdateBooking(ctx, b.ID, 2, models.BookingCancelled); err != nil {
			return err
		}
		got, err := tx.Booking(ctx, b.ID)
		if err != nil {
			return err
		}
		if got.Status != models.BookingCancelled || got.Attendees != 2 {
			t.Errorf("booking = %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = s.View(ctx, func(tx bookings.Tx) error {
		tally, err := tx.Tally(ctx, ev.ID)
		if err != nil {
			return err
		}
		if tally.Bookings != 1 || tally.Seats != 1 {
			t.Errorf("tally = %+v, want {1 1}", tally)
		}
		found, err := tx.BookingFor(ctx, user, ev.ID)
		if err != nil {
			return err
		}
		if found == nil || found.ID != b.ID {
			t.Errorf("BookingFor = %+v", found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	err = s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		if err := tx.DeleteBooking(ctx, b.ID); err != nil {
			return err
		}
		return tx.DeleteBooking(ctx, b.ID)
	})
	if !errors.Is(err, bookings.ErrBookingNotFound) {
		t.Fatalf("double delete = %v, want ErrBookingNotFound", err)
	}
	list, _ := s.ListBookings(ctx, models.BookingFilter{UserID: &user})
	if len(list) != 1 {
		t.Fatalf("failed transaction should roll back the first delete, got %d bookings", len(list))
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	capacity := 12
	ev := createEvent(t, s, &capacity)

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Capacity == nil || *got.Capacity != 12 || got.Title != ev.Title {
		t.Fatalf("event = %+v", got)
	}
	unlimited := func(e *models.Event) error {
		e.Capacity = nil
		return nil
	}
	again, err := s.UpdateEvent(ctx, ev.ID, unlimited)
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if !again.Unlimited() {
		t.Fatal("capacity not cleared")
	}
	if stored, _ := s.GetEvent(ctx, ev.ID); !stored.Unlimited() {
		t.Fatal("cleared capacity not persisted")
	}

	createEvent(t, s, nil)
	list, err := s.ListEvents(ctx, models.EventFilter{Limit: 1})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListEvents = %d, %v", len(list), err)
	}

	if err := s.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateEvent(ctx, ev.ID, unlimited); !errors.Is(err, events.ErrNotFound) {
		t.Fatalf("update deleted event = %v", err)
	}
}

func TestUpdateEventCapacityFloor(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	capacity := 10
	ev := createEvent(t, s, &capacity)
	err := s.WithEventLock(ctx, ev.ID, func(tx bookings.Tx) error {
		for _, b := range []models.Booking{
			{EventID: ev.ID, UserID: uuid.New(), Attendees: 4, Status: models.BookingConfirmed},
			{EventID: ev.ID, UserID: uuid.New(), Attendees: 2, Status: models.BookingPending},
			{EventID: ev.ID, UserID: uuid.New(), Attendees: 5, Status: models.BookingCancelled},
		} {
			if err := tx.InsertBooking(ctx, &b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed bookings: %v", err)
	}

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
}
