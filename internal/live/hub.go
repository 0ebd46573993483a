// Package live streams attendance activity to event organizers over
// WebSocket. Each event has a room; check-ins recorded anywhere in the
// cluster fan out to every connected watcher via Redis pub/sub.
package live

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes an event-room message for other instances.
type Publisher interface {
	PublishEventFeed(eventID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to an event room and invokes handler for incoming
// messages from other instances.
type Subscriber interface {
	SubscribeEventFeed(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// CheckInEvent is the payload broadcast when a check-in is recorded.
type CheckInEvent struct {
	RegistrationID uuid.UUID            `json:"registration_id"`
	UserID         uuid.UUID            `json:"user_id"`
	Method         models.CheckInMethod `json:"method"`
	CheckInCount   int                  `json:"check_in_count"`
	CheckedInAt    string               `json:"checked_in_at"`
}

// Hub maintains event_id -> set of connections and broadcasts messages.
type Hub struct {
	rooms  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates an attendance feed hub. pub and sub may be nil for
// single-instance deployments.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a client to an event room. The first client starts the Redis
// subscription for that room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeEventFeed(c.EventID, func(event string, payload []byte) {
				h.broadcast(c.EventID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.EventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("watcher joined attendance feed",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client. The last client leaving cancels the room's
// Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("watcher left attendance feed",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// broadcast sends a message to all local clients in an event room.
func (h *Hub) broadcast(eventID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.rooms[eventID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// CheckInRecorded pushes a recorded check-in to every watcher of the event.
// When Redis is wired the message goes through pub/sub only; the subscriber
// callback delivers it locally too, so each instance (this one included)
// broadcasts exactly once. Satisfies the check-ins service's Broadcaster.
func (h *Hub) CheckInRecorded(eventID uuid.UUID, reg *models.Registration, ci *models.CheckIn) {
	payload := CheckInEvent{
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		Method:         ci.Method,
		CheckInCount:   reg.CheckInCount,
		CheckedInAt:    ci.CheckedInAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		_ = h.pub.PublishEventFeed(eventID, "check_in", data)
		return
	}
	h.broadcast(eventID, "check_in", json.RawMessage(data))
}

// WatcherCount returns the number of connected clients for an event.
func (h *Hub) WatcherCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
