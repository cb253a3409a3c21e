package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/metrics"
)

// Cache key namespaces.
const (
	CacheKeyEventsList = "cache:events:list:"
	CacheKeyEventItem  = "cache:events:item:"
	CacheKeyTypesList  = "cache:types:list"
)

type cachedResponse struct {
	Status int
	Header map[string][]string
	Body   []byte
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheKey maps a GET request on a cacheable route to its Redis key. Other
// requests get "".
func CacheKey(c *gin.Context) string {
	if c.Request.Method != "GET" {
		return ""
	}
	switch c.FullPath() {
	case "/events":
		return CacheKeyEventsList + sha1Hex(c.Request.URL.RawQuery)
	case "/events/:id":
		return CacheKeyEventItem + c.Param("id")
	case "/types":
		return CacheKeyTypesList
	default:
		return ""
	}
}

// ResponseCache serves 2xx GET responses from Redis for ttl. Redis failures
// fall through to the handler.
func ResponseCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := CacheKey(c)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		b, err := rdb.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("cache get", zap.String("key", key), zap.Error(err))
		}
		if err == nil && len(b) > 0 {
			var hit cachedResponse
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				c.Abort()
				return
			}
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Header("X-Cache", "MISS")

		c.Next()

		status := bw.Status()
		if status < 200 || status >= 300 {
			return
		}
		header := make(map[string][]string)
		for k, v := range bw.Header() {
			if k != "X-Cache" {
				header[k] = v
			}
		}
		var out bytes.Buffer
		if err := gob.NewEncoder(&out).Encode(cachedResponse{Status: status, Header: header, Body: bw.buf.Bytes()}); err != nil {
			return
		}
		if err := rdb.Set(ctx, key, out.Bytes(), ttl).Err(); err != nil {
			logger.Warn("cache set", zap.String("key", key), zap.Error(err))
		}
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheInvalidator removes cached responses after writes.
type CacheInvalidator struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewCacheInvalidator creates an invalidator for the keys ResponseCache writes.
func NewCacheInvalidator(rdb *redis.Client, logger *zap.Logger) *CacheInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheInvalidator{rdb: rdb, logger: logger}
}

// PurgeEventsList drops every cached variant of the event listing.
func (ci *CacheInvalidator) PurgeEventsList(ctx context.Context) {
	iter := ci.rdb.Scan(ctx, 0, CacheKeyEventsList+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		ci.logger.Warn("cache scan", zap.Error(err))
		return
	}
	ci.del(ctx, keys...)
}

// PurgeEventItem drops the cached details of one event.
func (ci *CacheInvalidator) PurgeEventItem(ctx context.Context, id int64) {
	ci.del(ctx, CacheKeyEventItem+strconv.FormatInt(id, 10))
}

// PurgeTypes drops the cached type listing.
func (ci *CacheInvalidator) PurgeTypes(ctx context.Context) {
	ci.del(ctx, CacheKeyTypesList)
}

func (ci *CacheInvalidator) del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := ci.rdb.Del(ctx, keys...).Err(); err != nil {
		ci.logger.Warn("cache purge", zap.String("keys", strings.Join(keys, ",")), zap.Error(err))
	}
}
