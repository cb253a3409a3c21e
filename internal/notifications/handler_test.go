package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homies-app/backend/internal/models"
)

type fakeLister struct {
	logs map[int64][]*models.NotificationLog
	err  error
}

func (f fakeLister) ListByEvent(_ context.Context, eventID int64) ([]*models.NotificationLog, error) {
	return f.logs[eventID], f.err
}

func TestListByEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lister := fakeLister{logs: map[int64][]*models.NotificationLog{
		3: {{EventID: 3, HelperID: "h", Action: models.ActionJoined, Status: models.NotificationStatusSent}},
	}}
	r := gin.New()
	r.GET("/events/:id/notifications", NewHandler(lister).ListByEvent)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/3/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.NotificationLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, models.NotificationStatusSent, body.Data[0].Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/x/notifications", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListByEventStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events/:id/notifications", NewHandler(fakeLister{err: errors.New("db down")}).ListByEvent)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/3/notifications", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
