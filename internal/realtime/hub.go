package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventio/backend/internal/bookings"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventAvailability carries a bookings.Availability payload.
	EventAvailability = "availability"
	// EventWatchers carries the number of clients watching an event.
	EventWatchers = "watchers"
)

// Hub maintains event_id -> set of connections and broadcasts seat
// availability to them. With Redis configured every instance publishes to
// the event channel and re-broadcasts what it receives, so clients on all
// instances see each change once.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per event
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishEventMessage(eventID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to event channels and invokes handler for incoming messages.
type RedisSubscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

var _ bookings.AvailabilityNotifier = (*Hub)(nil)

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for
// a single-instance deployment.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an event room. The first client of a room
// starts the Redis subscription for the event.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.EventID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.EventID] = room
	}
	room[c.ID] = c
	count := len(room)
	h.mu.Unlock()

	if !ok {
		h.subscribe(c.EventID)
	}
	h.Broadcast(c.EventID, EventWatchers, map[string]int{"count": count})
	h.logger.Debug("client watching event", c.fields()...)
}

// subscribe starts the Redis subscription of an event without holding the
// hub lock. The subscription is kept only if the room still has clients
// and no other subscription was stored meanwhile.
func (h *Hub) subscribe(eventID uuid.UUID) {
	if h.redisSub == nil {
		return
	}
	cancel, err := h.redisSub.SubscribeEvent(eventID, func(event string, payload []byte) {
		h.Broadcast(eventID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}

	h.mu.Lock()
	_, live := h.rooms[eventID]
	_, dup := h.subs[eventID]
	if live && !dup {
		h.subs[eventID] = cancel
		cancel = nil
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Unregister removes a client from an event room. Cancels the Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var (
		count  int
		cancel func()
	)
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.EventID)
			cancel = h.subs[c.EventID]
			delete(h.subs, c.EventID)
		}
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if count > 0 {
		h.Broadcast(c.EventID, EventWatchers, map[string]int{"count": count})
	}
	h.logger.Debug("client left event", c.fields()...)
}

// Broadcast sends a message to all local clients watching an event.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Error("marshal ws payload", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish fans a message out to every instance. With Redis the local
// broadcast happens through this instance's own subscription.
func (h *Hub) Publish(eventID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal ws payload", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishEventMessage(eventID, event, data); err != nil {
		h.logger.Warn("redis publish failed, broadcasting locally", zap.String("event_id", eventID.String()), zap.Error(err))
		h.Broadcast(eventID, event, json.RawMessage(data))
	}
}

// AvailabilityChanged implements bookings.AvailabilityNotifier.
func (h *Hub) AvailabilityChanged(a bookings.Availability) {
	h.Publish(a.EventID, EventAvailability, a)
}

// Watchers returns the number of connected clients watching an event.
func (h *Hub) Watchers(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// SendToClient sends a message to a single client in an event room.
func (h *Hub) SendToClient(eventID uuid.UUID, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	c, ok := h.rooms[eventID][clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
