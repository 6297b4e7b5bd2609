package worker

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/queue"
)

type fakeLister struct {
	rows  []models.Booking
	err   error
	calls atomic.Int32
}

func (f *fakeLister) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Booking, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Booking
	for _, b := range f.rows {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	fail    int
}

func (f *fakeUploader) UploadExport(ctx context.Context, key string, body io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("s3 unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = string(data)
	return nil
}

func (f *fakeUploader) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	return v, ok
}

// chanQueue mimics the Redis queue: Retry pushes back to the main list
// until attempts exceed MaxRetries, then to the dead-letter list.
type chanQueue struct {
	jobs chan *queue.Job
	mu   sync.Mutex
	dlq  []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *chanQueue) Retry(ctx context.Context, job *queue.Job) error {
	job.Attempt++
	if job.Attempt > queue.MaxRetries {
		q.mu.Lock()
		q.dlq = append(q.dlq, job)
		q.mu.Unlock()
		return nil
	}
	q.jobs <- job
	return nil
}

func exportJob(t *testing.T, eventID uuid.UUID) (*queue.Job, queue.ExportPayload) {
	t.Helper()
	payload := queue.ExportPayload{ExportID: uuid.New(), EventID: eventID, RequestedBy: uuid.New()}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeBookingExport, Payload: raw}, payload
}

func TestProcessWritesManifest(t *testing.T) {
	ev := uuid.New()
	created := time.Date(2030, 5, 1, 18, 30, 0, 0, time.UTC)
	lister := &fakeLister{rows: []models.Booking{
		{ID: uuid.New(), EventID: ev, UserID: uuid.New(), Attendees: 3, Status: models.BookingConfirmed, CreatedAt: created},
		{ID: uuid.New(), EventID: ev, UserID: uuid.New(), Attendees: 0, Status: models.BookingPending, CreatedAt: created},
		{ID: uuid.New(), EventID: uuid.New(), UserID: uuid.New(), Attendees: 1, Status: models.BookingConfirmed},
	}}
	up := &fakeUploader{objects: make(map[string]string)}
	p := NewExportProcessor(lister, up, nil, zaptest.NewLogger(t))

	job, payload := exportJob(t, ev)
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	body, ok := up.get("exports/" + ev.String() + "/" + payload.ExportID.String() + ".csv")
	if !ok {
		t.Fatalf("object missing, have %v", up.objects)
	}
	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != "booking_id,user_id,attendees,status,created_at" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][2] != "3" || rows[1][4] != "2030-05-01T18:30:00Z" {
		t.Fatalf("first row = %v", rows[1])
	}
	if rows[2][2] != "1" || rows[2][3] != "pending" {
		t.Fatalf("legacy row = %v", rows[2])
	}
}

func TestProcessRejectsUnknownJob(t *testing.T) {
	p := NewExportProcessor(&fakeLister{}, &fakeUploader{objects: map[string]string{}}, nil, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "resize_image"}); err == nil {
		t.Fatal("unknown job type accepted")
	}
	if err := p.Process(context.Background(), &queue.Job{Type: queue.JobTypeBookingExport, Payload: []byte("{")}); err == nil {
		t.Fatal("broken payload accepted")
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	ev := uuid.New()
	up := &fakeUploader{objects: make(map[string]string), fail: 1}
	q := &chanQueue{jobs: make(chan *queue.Job, 4)}
	p := NewExportProcessor(&fakeLister{}, up, q, zaptest.NewLogger(t))
	p.backoff = time.Millisecond

	job, payload := exportJob(t, ev)
	q.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	key := "exports/" + ev.String() + "/" + payload.ExportID.String() + ".csv"
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := up.get(key); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export never uploaded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if job.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", job.Attempt)
	}
}

func TestRunMovesToDLQ(t *testing.T) {
	q := &chanQueue{jobs: make(chan *queue.Job, 4)}
	lister := &fakeLister{err: errors.New("db down")}
	p := NewExportProcessor(lister, &fakeUploader{objects: map[string]string{}}, q, zaptest.NewLogger(t))
	p.backoff = time.Millisecond
	job, _ := exportJob(t, uuid.New())
	q.jobs <- job

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	for {
		q.mu.Lock()
		n := len(q.dlq)
		q.mu.Unlock()
		if n == 1 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("job never reached the DLQ")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if job.Attempt != queue.MaxRetries+1 {
		t.Fatalf("attempt = %d, want %d", job.Attempt, queue.MaxRetries+1)
	}
	if n := lister.calls.Load(); n != queue.MaxRetries+1 {
		t.Fatalf("processed %d times, want one attempt plus %d retries", n, queue.MaxRetries)
	}
}

func TestWriteManifestEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteManifest(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "booking_id,user_id,attendees,status,created_at\n" {
		t.Fatalf("manifest = %q", buf.String())
	}
}
