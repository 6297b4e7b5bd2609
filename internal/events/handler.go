package events

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/middleware"
	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/pkg/response"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	statusActive     = "active"
)

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Date        string   `json:"date" binding:"required"`
	Time        string   `json:"time"`
	Location    string   `json:"location" binding:"required"`
	Category    string   `json:"category"`
	Image       string   `json:"image"`
	Capacity    *int     `json:"capacity"` // absent or 0 means unlimited
	Price       *float64 `json:"price"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Date        *string  `json:"date"`
	Time        *string  `json:"time"`
	Location    *string  `json:"location"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	Capacity    *int     `json:"capacity"` // 0 clears the limit
	Price       *float64 `json:"price"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Create handles POST /events. The caller becomes the organizer.
func (h *Handler) Create(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := parseTime(req.Date)
	if err != nil {
		response.BadRequest(c, "invalid date")
		return
	}
	capacity, err := normalizeCapacity(req.Capacity)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var price float64
	if req.Price != nil {
		if *req.Price < 0 {
			response.BadRequest(c, "price cannot be negative")
			return
		}
		price = *req.Price
	}

	e := &models.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    req.Category,
		Date:        date,
		Time:        req.Time,
		Location:    req.Location,
		Image:       req.Image,
		Capacity:    capacity,
		Price:       price,
		CreatedBy:   caller.ID,
		Status:      statusActive,
	}
	if err := h.store.CreateEvent(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.notFoundOr(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

// List handles GET /events. Query ?category= filters, ?limit= caps the
// result and ?mine=1 returns only events organized by the caller.
func (h *Handler) List(c *gin.Context) {
	filter := models.EventFilter{Category: c.Query("category"), Limit: defaultListLimit}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	if c.Query("mine") == "1" {
		caller, ok := middleware.CallerFrom(c)
		if !ok {
			response.Unauthorized(c, "login required for mine=1")
			return
		}
		filter.CreatedBy = &caller.ID
	}
	list, err := h.store.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /events/:id (organizer or admin). The request is
// validated first; the fields are then applied to the stored event under
// its lock so concurrent PATCHes never drop each other's fields.
func (h *Handler) Update(c *gin.Context) {
	e, ok := h.loadManaged(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	var date time.Time
	if req.Date != nil {
		t, err := parseTime(*req.Date)
		if err != nil {
			response.BadRequest(c, "invalid date")
			return
		}
		date = t
	}
	var capacity *int
	if req.Capacity != nil {
		v, err := normalizeCapacity(req.Capacity)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		capacity = v
	}
	if req.Price != nil && *req.Price < 0 {
		response.BadRequest(c, "price cannot be negative")
		return
	}

	updated, err := h.store.UpdateEvent(c.Request.Context(), e.ID, func(e *models.Event) error {
		if req.Title != nil {
			e.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			e.Description = *req.Description
		}
		if req.Date != nil {
			e.Date = date
		}
		if req.Time != nil {
			e.Time = *req.Time
		}
		if req.Location != nil {
			e.Location = *req.Location
		}
		if req.Category != nil {
			e.Category = *req.Category
		}
		if req.Image != nil {
			e.Image = *req.Image
		}
		if req.Capacity != nil {
			e.Capacity = capacity
		}
		if req.Price != nil {
			e.Price = *req.Price
		}
		return nil
	})
	if err != nil {
		h.notFoundOr(c, err, "failed to update event")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /events/:id (organizer or admin). Bookings of the
// event are kept; readers see them with a null event.
func (h *Handler) Delete(c *gin.Context) {
	e, ok := h.loadManaged(c)
	if !ok {
		return
	}
	if err := h.store.DeleteEvent(c.Request.Context(), e.ID); err != nil {
		h.notFoundOr(c, err, "failed to delete event")
		return
	}
	response.NoContent(c)
}

// RequireOrganizer is a route middleware admitting only the organizer of
// the :id event or an admin.
func (h *Handler) RequireOrganizer(c *gin.Context) {
	if _, ok := h.loadManaged(c); !ok {
		c.Abort()
		return
	}
	c.Next()
}

// loadManaged loads the :id event and checks the caller may manage it.
// It writes the error response itself when it returns false.
func (h *Handler) loadManaged(c *gin.Context) (*models.Event, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, false
	}
	caller, _ := middleware.CallerFrom(c)
	e, err := h.store.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.notFoundOr(c, err, "failed to load event")
		return nil, false
	}
	if !caller.CanManage(e.CreatedBy) {
		response.Forbidden(c, "only the organizer or an admin can manage this event")
		return nil, false
	}
	return e, true
}

func (h *Handler) notFoundOr(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "event not found")
		return
	case errors.Is(err, ErrCapacityBelowBooked):
		response.Conflict(c, err.Error())
		return
	}
	h.logger.Error(msg, zap.Error(err))
	response.Internal(c, msg)
}

// normalizeCapacity maps an absent or zero capacity to unlimited.
func normalizeCapacity(v *int) (*int, error) {
	if v == nil || *v == 0 {
		return nil, nil
	}
	if *v < 0 {
		return nil, errors.New("capacity must be a positive integer")
	}
	capacity := *v
	return &capacity, nil
}
