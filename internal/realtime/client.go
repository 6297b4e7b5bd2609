package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/models"
)

const snapshotTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SnapshotFunc loads the current availability of an event.
type SnapshotFunc func(ctx context.Context, eventID uuid.UUID) (*bookings.Availability, error)

// CallerFunc resolves a token into a caller.
type CallerFunc func(token string) (models.Caller, error)

// Client represents a single WebSocket connection watching an event.
type Client struct {
	ID       string
	EventID  uuid.UUID
	Caller   *models.Caller // nil for anonymous watchers
	hub      *Hub
	snapshot SnapshotFunc
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles GET /ws?event_id=...[&token=...]. Availability is public,
// so the token is optional; a token that is present must be valid.
func ServeWs(hub *Hub, logger *zap.Logger, resolve CallerFunc, snapshot SnapshotFunc) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Query("event_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "valid event_id required"})
			return
		}
		var caller *models.Caller
		if token := c.Query("token"); token != "" {
			who, err := resolve(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
				return
			}
			caller = &who
		}
		initial, err := snapshot(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "event not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			EventID:  eventID,
			Caller:   caller,
			hub:      hub,
			snapshot: snapshot,
			conn:     conn,
			send:     make(chan WSMessage, 64),
			logger:   logger,
		}
		hub.Register(client)
		hub.SendToClient(eventID, client.ID, EventAvailability, initial)
		go client.writePump()
		client.readPump()
	}
}

// fields identifies the client in log entries.
func (c *Client) fields() []zap.Field {
	fs := []zap.Field{zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String())}
	if c.Caller != nil {
		fs = append(fs, zap.String("user_id", c.Caller.ID.String()))
	}
	return fs
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "refresh":
			c.refresh()
		default:
			// ignore
		}
	}
}

func (c *Client) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	a, err := c.snapshot(ctx, c.EventID)
	if err != nil {
		c.hub.SendToClient(c.EventID, c.ID, "error", map[string]string{"error": "availability unavailable"})
		c.logger.Debug("availability refresh failed", append(c.fields(), zap.Error(err))...)
		return
	}
	c.hub.SendToClient(c.EventID, c.ID, EventAvailability, a)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
