// Package worker runs background jobs pulled from the Redis queue.
package worker

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/queue"
	"github.com/eventio/backend/pkg/storage"
)

// ManifestHeader is the first row of every booking export.
var ManifestHeader = []string{"booking_id", "user_id", "attendees", "status", "created_at"}

// BookingLister lists the bookings of one event.
type BookingLister interface {
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Booking, error)
}

// Uploader stores a finished export.
type Uploader interface {
	UploadExport(ctx context.Context, key string, body io.Reader) error
}

// JobQueue is the slice of pkg/queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ExportProcessor turns booking export jobs into CSV manifests on S3.
type ExportProcessor struct {
	bookings BookingLister
	uploader Uploader
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewExportProcessor creates a booking export processor.
func NewExportProcessor(bookings BookingLister, uploader Uploader, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{bookings: bookings, uploader: uploader, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeBookingExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	list, err := p.bookings.ListForEvent(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteManifest(&buf, list); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	key := storage.ExportKey(payload.EventID.String(), payload.ExportID.String())
	if err := p.uploader.UploadExport(ctx, key, &buf); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	p.logger.Info("booking export completed",
		zap.String("export_id", payload.ExportID.String()),
		zap.String("event_id", payload.EventID.String()),
		zap.Int("rows", len(list)),
		zap.String("s3_key", key),
	)
	return nil
}

// WriteManifest writes bookings as CSV rows under ManifestHeader.
func WriteManifest(w io.Writer, list []models.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ManifestHeader); err != nil {
		return err
	}
	for _, b := range list {
		row := []string{
			b.ID.String(),
			b.UserID.String(),
			strconv.Itoa(models.SeatsFor(b.Attendees)),
			string(b.Status),
			b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("export worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
