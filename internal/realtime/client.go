package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/events"
	"github.com/homies-app/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the WebSocket message envelope.
type Message struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventLookup confirms an event exists before a client may watch it.
type EventLookup interface {
	GetEventOrganiserID(ctx context.Context, id int64) (string, error)
}

// Client is one WebSocket connection watching one event.
type Client struct {
	ID      string
	EventID int64
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	done    chan struct{}
	logger  *zap.Logger
}

// ServeWs upgrades GET /events/:id/live and streams the event's live updates
// until the client disconnects. Clients only receive; anything they send is
// discarded.
func ServeWs(hub *Hub, lookup EventLookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || eventID <= 0 {
			response.BadRequest(c, "invalid event id")
			return
		}
		if _, err := lookup.GetEventOrganiserID(c.Request.Context(), eventID); err != nil {
			if errors.Is(err, events.ErrEventNotFound) {
				response.NotFound(c, err.Error())
				return
			}
			logger.Error("live feed lookup", zap.Int64("event_id", eventID), zap.Error(err))
			response.Internal(c, "internal error")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			EventID: eventID,
			hub:     hub,
			conn:    conn,
			send:    make(chan Message, 64),
			done:    make(chan struct{}),
			logger:  logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("live write failed", zap.String("client_id", c.ID), zap.Error(err))
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
