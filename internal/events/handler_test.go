package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/eventio/backend/internal/auth"
	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/middleware"
	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/internal/store/memory"
)

type harness struct {
	router *gin.Engine
	jwt    *auth.JWTService
	store  *memory.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("test-secret", 1)
	store := memory.New()
	h := events.NewHandler(store, zaptest.NewLogger(t))

	r := gin.New()
	public := r.Group("", middleware.OptionalJWT(jwtSvc))
	public.GET("/events", h.List)
	public.GET("/events/:id", h.GetByID)
	authed := r.Group("", middleware.JWT(jwtSvc))
	authed.POST("/events", h.Create)
	authed.PATCH("/events/:id", h.Update)
	authed.DELETE("/events/:id", h.Delete)
	authed.GET("/events/:id/attendees", h.RequireOrganizer, func(c *gin.Context) { c.Status(http.StatusOK) })
	return &harness{router: r, jwt: jwtSvc, store: store}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (h *harness) do(t *testing.T, caller *models.Caller, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		token, err := h.jwt.Generate(*caller)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, env
}

func (h *harness) create(t *testing.T, caller models.Caller, body map[string]any) models.Event {
	t.Helper()
	code, env := h.do(t, &caller, http.MethodPost, "/events", body)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", code, env.Error)
	}
	var e models.Event
	if err := json.Unmarshal(env.Data, &e); err != nil {
		t.Fatal(err)
	}
	return e
}

func eventBody(extra map[string]any) map[string]any {
	body := map[string]any{
		"title":       "Gophers unite",
		"description": "Monthly meetup",
		"date":        "2030-05-01",
		"time":        "18:30",
		"location":    "Amsterdam",
		"category":    "tech",
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func caller(role models.Role) models.Caller {
	return models.Caller{ID: uuid.New(), Role: role}
}

func TestCreateEvent(t *testing.T) {
	h := newHarness(t)
	org := caller(models.RoleUser)

	e := h.create(t, org, eventBody(map[string]any{"capacity": 30, "price": 12.5}))
	if e.CreatedBy != org.ID || e.Capacity == nil || *e.Capacity != 30 || e.Price != 12.5 {
		t.Fatalf("event = %+v", e)
	}

	unlimited := h.create(t, org, eventBody(map[string]any{"capacity": 0}))
	if !unlimited.Unlimited() {
		t.Fatal("capacity 0 should mean unlimited")
	}
	if absent := h.create(t, org, eventBody(nil)); !absent.Unlimited() {
		t.Fatal("absent capacity should mean unlimited")
	}
}

func TestCreateEventValidation(t *testing.T) {
	h := newHarness(t)
	org := caller(models.RoleUser)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"description": "d", "date": "2030-01-01", "location": "x"}},
		{"bad date", eventBody(map[string]any{"date": "next tuesday"})},
		{"negative capacity", eventBody(map[string]any{"capacity": -1})},
		{"negative price", eventBody(map[string]any{"price": -5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := h.do(t, &org, http.MethodPost, "/events", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", code, env.Error)
			}
		})
	}
	if code, _ := h.do(t, nil, http.MethodPost, "/events", eventBody(nil)); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d, want 401", code)
	}
}

func TestUpdateAndDeletePermissions(t *testing.T) {
	h := newHarness(t)
	org := caller(models.RoleUser)
	stranger := caller(models.RoleUser)
	admin := caller(models.RoleAdmin)
	e := h.create(t, org, eventBody(map[string]any{"capacity": 10}))
	path := "/events/" + e.ID.String()

	if code, _ := h.do(t, &stranger, http.MethodPatch, path, map[string]any{"title": "Hijacked"}); code != http.StatusForbidden {
		t.Fatalf("stranger update = %d, want 403", code)
	}
	if code, _ := h.do(t, &stranger, http.MethodGet, path+"/attendees", nil); code != http.StatusForbidden {
		t.Fatalf("stranger attendees = %d, want 403", code)
	}
	if code, _ := h.do(t, &org, http.MethodGet, path+"/attendees", nil); code != http.StatusOK {
		t.Fatalf("organizer attendees = %d, want 200", code)
	}

	code, env := h.do(t, &org, http.MethodPatch, path, map[string]any{"title": "Renamed", "capacity": 0})
	if code != http.StatusOK {
		t.Fatalf("organizer update = %d (%s)", code, env.Error)
	}
	var updated models.Event
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Renamed" || !updated.Unlimited() || updated.CreatedBy != org.ID {
		t.Fatalf("updated = %+v", updated)
	}

	if code, _ := h.do(t, &admin, http.MethodPatch, path, map[string]any{"capacity": 5}); code != http.StatusOK {
		t.Fatalf("admin update = %d", code)
	}
	if code, _ := h.do(t, &stranger, http.MethodDelete, path, nil); code != http.StatusForbidden {
		t.Fatalf("stranger delete = %d, want 403", code)
	}
	if code, _ := h.do(t, &admin, http.MethodDelete, path, nil); code != http.StatusNoContent {
		t.Fatalf("admin delete = %d, want 204", code)
	}
	if code, _ := h.do(t, nil, http.MethodGet, path, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted = %d, want 404", code)
	}
}

func TestUpdateCapacityBelowBooked(t *testing.T) {
	h := newHarness(t)
	org := caller(models.RoleUser)
	e := h.create(t, org, eventBody(map[string]any{"capacity": 10}))
	path := "/events/" + e.ID.String()
	err := h.store.WithEventLock(context.Background(), e.ID, func(tx bookings.Tx) error {
		return tx.InsertBooking(context.Background(), &models.Booking{
			EventID: e.ID, UserID: uuid.New(), Attendees: 7, Status: models.BookingConfirmed,
		})
	})
	if err != nil {
		t.Fatalf("InsertBooking: %v", err)
	}

	code, env := h.do(t, &org, http.MethodPatch, path, map[string]any{"title": "Smaller room", "capacity": 6})
	if code != http.StatusConflict || env.Success {
		t.Fatalf("shrink below booked = %d (%s), want 409", code, env.Error)
	}
	_, env = h.do(t, nil, http.MethodGet, path, nil)
	var got models.Event
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Capacity == nil || *got.Capacity != 10 || got.Title != e.Title {
		t.Fatalf("rejected update leaked: %+v", got)
	}

	if code, env := h.do(t, &org, http.MethodPatch, path, map[string]any{"capacity": 7}); code != http.StatusOK {
		t.Fatalf("shrink to booked = %d (%s), want 200", code, env.Error)
	}
}

func TestListEvents(t *testing.T) {
	h := newHarness(t)
	alice := caller(models.RoleUser)
	bob := caller(models.RoleUser)
	for i := 0; i < 12; i++ {
		h.create(t, alice, eventBody(nil))
	}
	h.create(t, bob, eventBody(map[string]any{"category": "music"}))

	count := func(c *models.Caller, path string) int {
		t.Helper()
		code, env := h.do(t, c, http.MethodGet, path, nil)
		if code != http.StatusOK {
			t.Fatalf("GET %s = %d (%s)", path, code, env.Error)
		}
		var list []models.Event
		if err := json.Unmarshal(env.Data, &list); err != nil {
			t.Fatal(err)
		}
		return len(list)
	}

	if n := count(nil, "/events"); n != 10 {
		t.Errorf("default page = %d, want 10", n)
	}
	if n := count(nil, "/events?limit=50"); n != 13 {
		t.Errorf("limit=50 = %d, want 13", n)
	}
	if n := count(nil, "/events?category=music"); n != 1 {
		t.Errorf("music = %d, want 1", n)
	}
	if n := count(&bob, "/events?mine=1"); n != 1 {
		t.Errorf("bob mine = %d, want 1", n)
	}
	if code, _ := h.do(t, nil, http.MethodGet, "/events?mine=1", nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous mine=1 = %d, want 401", code)
	}
	if code, _ := h.do(t, nil, http.MethodGet, "/events?limit=zero", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", code)
	}
}
