package notifications

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/response"
)

// Lister loads the notification log of an event.
type Lister interface {
	ListByEvent(ctx context.Context, eventID int64) ([]*models.NotificationLog, error)
}

// Handler handles notification log HTTP endpoints.
type Handler struct {
	logs Lister
}

// NewHandler creates a notification log handler.
func NewHandler(logs Lister) *Handler {
	return &Handler{logs: logs}
}

// ListByEvent handles GET /events/:id/notifications. Mount it behind the
// organiser check so access is already validated.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.logs.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load notification logs")
		return
	}
	response.OK(c, logs)
}
