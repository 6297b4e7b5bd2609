package bookings

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/middleware"
	"github.com/eventio/backend/pkg/response"
)

// CreateRequest is the body for POST /bookings.
type CreateRequest struct {
	EventID   string `json:"event_id" binding:"required"`
	Attendees *int   `json:"attendees"`
}

// UpdateRequest is the body for PUT /bookings/:id.
type UpdateRequest struct {
	Attendees *int    `json:"attendees"`
	Status    *string `json:"status"`
}

// Handler handles booking HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /bookings.
func (h *Handler) Create(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	b, err := h.svc.Create(c.Request.Context(), caller, CreateInput{EventID: eventID, Attendees: req.Attendees})
	if err != nil {
		h.fail(c, err, "failed to create booking")
		return
	}
	response.Created(c, gin.H{"booking_id": b.ID, "booking": b})
}

// List handles GET /bookings. Query ?event_id= filters by event and
// ?all=1 lists every booking for admins.
func (h *Handler) List(c *gin.Context) {
	h.list(c, c.Query("all") == "1")
}

// ListAll handles GET /admin/bookings.
func (h *Handler) ListAll(c *gin.Context) {
	h.list(c, true)
}

func (h *Handler) list(c *gin.Context, all bool) {
	caller, _ := middleware.CallerFrom(c)
	in := ListInput{All: all}
	if s := c.Query("event_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid event id")
			return
		}
		in.EventID = &id
	}
	list, err := h.svc.List(c.Request.Context(), caller, in)
	if err != nil {
		h.fail(c, err, "failed to list bookings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /bookings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	view, err := h.svc.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.fail(c, err, "failed to load booking")
		return
	}
	response.OK(c, view)
}

// Update handles PUT /bookings/:id.
func (h *Handler) Update(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Update(c.Request.Context(), caller, id, UpdateInput{Attendees: req.Attendees, Status: req.Status})
	if err != nil {
		h.fail(c, err, "failed to update booking")
		return
	}
	response.OK(c, b)
}

// Delete handles DELETE /bookings/:id.
func (h *Handler) Delete(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), caller, id); err != nil {
		h.fail(c, err, "failed to cancel booking")
		return
	}
	response.OK(c, gin.H{"message": "booking cancelled"})
}

// EventBookings handles GET /events/:id/bookings. The route sits behind
// events.Handler.RequireOrganizer.
func (h *Handler) EventBookings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.ListForEvent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to list event bookings")
		return
	}
	response.OK(c, list)
}

// EventAvailability handles GET /events/:id/bookings/count (public).
func (h *Handler) EventAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	a, err := h.svc.Availability(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load availability")
		return
	}
	response.OK(c, a)
}

// fail maps service errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, ErrInvalidAttendees), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrSelfBooking):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrBookingNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrDuplicateBooking), errors.Is(err, ErrCapacityExceeded):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error(internalMsg, zap.Error(err), zap.String("path", c.Request.URL.Path))
		response.Internal(c, internalMsg)
	}
}
