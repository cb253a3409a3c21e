package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Publisher fans a message out to every server instance.
type Publisher interface {
	PublishEventMessage(eventID int64, kind string, payload []byte) error
}

// Subscriber delivers messages published for one event.
type Subscriber interface {
	SubscribeEvent(eventID int64, handler func(kind string, payload []byte)) (cancel func(), err error)
}

// Hub maintains event_id -> set of watching connections. With a Publisher
// configured, broadcasts go through Redis so every instance delivers them
// exactly once; otherwise they are delivered locally.
type Hub struct {
	rooms   map[int64]map[string]*Client
	subs    map[int64]func()
	pending map[int64]bool
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[int64]map[string]*Client),
		subs:    make(map[int64]func()),
		pending: make(map[int64]bool),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds a client to its event room. A room without a live
// subscription (new, or a previous attempt failed) subscribes again.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
	}
	h.rooms[c.EventID][c.ID] = c
	needSub := h.needsSubscription(c.EventID)
	if needSub {
		h.pending[c.EventID] = true
	}
	h.mu.Unlock()

	h.logger.Debug("client watching event", zap.String("client_id", c.ID), zap.Int64("event_id", c.EventID))
	if needSub {
		h.subscribe(c.EventID)
	}
}

// needsSubscription must be called with h.mu held.
func (h *Hub) needsSubscription(eventID int64) bool {
	if h.sub == nil || h.pending[eventID] {
		return false
	}
	_, ok := h.subs[eventID]
	return !ok
}

// subscribe runs the Redis round trip without holding the lock.
func (h *Hub) subscribe(eventID int64) {
	cancel, err := h.sub.SubscribeEvent(eventID, func(kind string, payload []byte) {
		h.deliver(eventID, kind, payload)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, eventID)
	if err != nil {
		h.logger.Warn("subscribe event channel", zap.Int64("event_id", eventID), zap.Error(err))
		return
	}
	if len(h.rooms[eventID]) == 0 {
		// everyone left while subscribing
		cancel()
		return
	}
	h.subs[eventID] = cancel
}

// Unregister removes a client and drops the subscription with the last one.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.EventID]
	if !ok {
		return
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(h.rooms, c.EventID)
		if cancel, ok := h.subs[c.EventID]; ok {
			cancel()
			delete(h.subs, c.EventID)
		}
	}
	h.logger.Debug("client left event", zap.String("client_id", c.ID), zap.Int64("event_id", c.EventID))
}

// Broadcast sends kind/payload to everyone watching eventID. Local watchers
// of a room that is not subscribed get the message directly.
func (h *Hub) Broadcast(eventID int64, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal live update", zap.String("kind", kind), zap.Error(err))
		return
	}
	if h.pub != nil {
		err := h.pub.PublishEventMessage(eventID, kind, data)
		if err == nil && h.subscribed(eventID) {
			return
		}
		if err != nil {
			h.logger.Warn("publish live update, delivering locally", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}
	h.deliver(eventID, kind, data)
}

func (h *Hub) subscribed(eventID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sub == nil {
		return false
	}
	_, ok := h.subs[eventID]
	return ok || h.pending[eventID]
}

// Watchers returns the number of local connections watching eventID.
func (h *Hub) Watchers(eventID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

func (h *Hub) deliver(eventID int64, kind string, data []byte) {
	msg := Message{Kind: kind, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// slow reader, drop
		}
	}
}
