package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/middleware"
	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/response"
)

// EventRequest is the body for POST /events and PUT /events/:id.
type EventRequest struct {
	Name        string    `json:"name" binding:"required,min=5,max=20"`
	Description string    `json:"description" binding:"required,min=15,max=150"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required,gtfield=Start"`
	TypeID      int       `json:"type_id" binding:"gt=0"`
	Version     int       `json:"version" binding:"omitempty,gt=0"`
}

func (r EventRequest) form() models.EventForm {
	return models.EventForm{
		Name:        r.Name,
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
		TypeID:      r.TypeID,
		Version:     r.Version,
	}
}

// TypeRequest is the body for POST /types.
type TypeRequest struct {
	Name string `json:"name" binding:"required,min=2,max=15"`
}

// CachePurger drops cached GET responses after writes.
type CachePurger interface {
	PurgeEventsList(ctx context.Context)
	PurgeEventItem(ctx context.Context, id int64)
	PurgeTypes(ctx context.Context)
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc    *Service
	cache  CachePurger
	logger *zap.Logger
}

// NewHandler creates an event handler. cache may be nil.
func NewHandler(svc *Service, cache CachePurger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cache: cache, logger: logger}
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.ListEvents(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Details handles GET /events/:id.
func (h *Handler) Details(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	d, err := h.svc.GetEventDetails(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, d)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Invalid(c, err)
		return
	}
	e, err := h.svc.AddEvent(c.Request.Context(), req.form(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.cache != nil {
		h.cache.PurgeEventsList(c.Request.Context())
	}
	response.Created(c, e)
}

// Edit handles GET /events/:id/edit. Only the organiser gets the form.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	organiser, err := h.svc.GetEventOrganiserID(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if organiser != middleware.UserID(c) {
		h.fail(c, ErrNotOrganiser)
		return
	}
	form, err := h.svc.GetEventForEdit(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, form)
}

// Update handles PUT /events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Invalid(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.UpdateEvent(ctx, id, req.form(), middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	if h.cache != nil {
		h.cache.PurgeEventItem(ctx, id)
		h.cache.PurgeEventsList(ctx)
	}
	form, err := h.svc.GetEventForEdit(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, form)
}

// Join handles POST /events/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.svc.JoinEvent(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"event_id": id, "joined": true})
}

// Leave handles POST /events/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.svc.LeaveEvent(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"event_id": id, "joined": false})
}

// IsJoined handles GET /events/:id/joined.
func (h *Handler) IsJoined(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	joined, err := h.svc.IsUserJoinedEvent(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"event_id": id, "joined": joined})
}

// Joined handles GET /me/joined.
func (h *Handler) Joined(c *gin.Context) {
	list, err := h.svc.ListJoinedEvents(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Participants handles GET /events/:id/participants (organiser only).
func (h *Handler) Participants(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	list, err := h.svc.ListEventParticipants(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Types handles GET /types.
func (h *Handler) Types(c *gin.Context) {
	types, err := h.svc.ListTypes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, types)
}

// CreateType handles POST /types (admin only).
func (h *Handler) CreateType(c *gin.Context) {
	var req TypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Invalid(c, err)
		return
	}
	t, err := h.svc.CreateType(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.cache != nil {
		h.cache.PurgeTypes(c.Request.Context())
	}
	response.Created(c, t)
}

// RequireOrganiser aborts with 403 unless the caller organises the event in
// the :id path parameter. The JWT middleware must run first.
func (h *Handler) RequireOrganiser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := eventID(c)
		if !ok {
			c.Abort()
			return
		}
		organiser, err := h.svc.GetEventOrganiserID(c.Request.Context(), id)
		if err == nil && organiser != middleware.UserID(c) {
			err = ErrNotOrganiser
		}
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNotJoined):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNotOrganiser):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrEditConflict), errors.Is(err, ErrDuplicateType):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUnknownType):
		response.BadRequest(c, err.Error())
	case errors.Is(err, context.Canceled):
		c.AbortWithStatus(499)
	default:
		_ = c.Error(err)
		h.logger.Error("event request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func eventID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid event id")
		return 0, false
	}
	return id, true
}
