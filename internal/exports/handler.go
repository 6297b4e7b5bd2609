// Package exports serves booking manifest export requests. The CSV itself
// is produced by the worker; this package only queues jobs and hands out
// download links.
package exports

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/middleware"
	"github.com/eventio/backend/pkg/queue"
	"github.com/eventio/backend/pkg/response"
	"github.com/eventio/backend/pkg/storage"
)

// Enqueuer queues export jobs.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) error
}

// Locator resolves a finished export to a download URL. It returns
// storage.ErrObjectNotFound until the worker has uploaded the file.
type Locator interface {
	ExportURL(ctx context.Context, key string) (string, error)
}

// Handler handles export HTTP endpoints. Routes are expected behind
// events.Handler.RequireOrganizer.
type Handler struct {
	queue  Enqueuer
	files  Locator
	logger *zap.Logger
}

// NewHandler creates an export handler. A nil queue or locator disables
// the matching endpoint with 503.
func NewHandler(q Enqueuer, files Locator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{queue: q, files: files, logger: logger}
}

// Create handles POST /events/:id/exports.
func (h *Handler) Create(c *gin.Context) {
	if h.queue == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	caller, _ := middleware.CallerFrom(c)
	payload := queue.ExportPayload{ExportID: uuid.New(), EventID: eventID, RequestedBy: caller.ID}
	if err := h.queue.EnqueueExport(c.Request.Context(), payload); err != nil {
		h.logger.Error("enqueue export", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to queue export")
		return
	}
	response.Accepted(c, gin.H{"export_id": payload.ExportID})
}

// DownloadURL handles GET /events/:id/exports/:exportId/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.files == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	exportID, err := uuid.Parse(c.Param("exportId"))
	if err != nil {
		response.BadRequest(c, "invalid export id")
		return
	}
	url, err := h.files.ExportURL(c.Request.Context(), storage.ExportKey(eventID.String(), exportID.String()))
	if errors.Is(err, storage.ErrObjectNotFound) {
		response.NotFound(c, "export not ready")
		return
	}
	if err != nil {
		h.logger.Error("presign export", zap.Error(err), zap.String("export_id", exportID.String()))
		response.Internal(c, "failed to create download url")
		return
	}
	response.OK(c, gin.H{"url": url, "export_id": exportID})
}
