package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedRouter(t *testing.T) (*gin.Engine, *CacheInvalidator, *miniredis.Miniredis, *int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls int32
	handler := func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusOK, gin.H{"path": c.Request.URL.Path})
	}
	cache := ResponseCache(rdb, time.Minute, nil)

	r := gin.New()
	r.GET("/events", cache, handler)
	r.GET("/events/:id", cache, handler)
	r.GET("/types", cache, handler)
	r.GET("/events/:id/edit", cache, handler)
	r.GET("/missing", cache, func(c *gin.Context) { c.Status(http.StatusNotFound) })
	return r, NewCacheInvalidator(rdb, nil), mr, &calls
}

func TestResponseCacheMissThenHit(t *testing.T) {
	r, _, mr, calls := newCachedRouter(t)

	w := serve(r, http.MethodGet, "/events/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.True(t, mr.Exists(CacheKeyEventItem+"3"))

	w = serve(r, http.MethodGet, "/events/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"path":"/events/3"}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestResponseCacheSkipsUncachedRoutesAndErrors(t *testing.T) {
	r, _, mr, calls := newCachedRouter(t)

	serve(r, http.MethodGet, "/events/3/edit", nil)
	serve(r, http.MethodGet, "/events/3/edit", nil)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	w := serve(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, mr.Keys())
}

func TestCacheInvalidatorPurges(t *testing.T) {
	r, inv, mr, calls := newCachedRouter(t)
	ctx := context.Background()

	serve(r, http.MethodGet, "/events", nil)
	serve(r, http.MethodGet, "/events?page=2", nil)
	serve(r, http.MethodGet, "/events/9", nil)
	serve(r, http.MethodGet, "/types", nil)
	require.Len(t, mr.Keys(), 4)

	inv.PurgeEventsList(ctx)
	assert.Len(t, mr.Keys(), 2)
	assert.True(t, mr.Exists(CacheKeyEventItem+"9"))

	inv.PurgeEventItem(ctx, 9)
	inv.PurgeTypes(ctx)
	assert.Empty(t, mr.Keys())

	w := serve(r, http.MethodGet, "/types", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, int32(5), atomic.LoadInt32(calls))
}

func TestResponseCacheFallsThroughWhenRedisDown(t *testing.T) {
	r, _, mr, calls := newCachedRouter(t)
	mr.Close()

	w := serve(r, http.MethodGet, "/types", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
