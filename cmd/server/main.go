// Package main runs the Homies HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/homies-app/backend/config"
	"github.com/homies-app/backend/internal/auth"
	"github.com/homies-app/backend/internal/events"
	"github.com/homies-app/backend/internal/metrics"
	"github.com/homies-app/backend/internal/middleware"
	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/internal/notifications"
	"github.com/homies-app/backend/internal/realtime"
	"github.com/homies-app/backend/pkg/database"
	"github.com/homies-app/backend/pkg/queue"
	"github.com/homies-app/backend/pkg/redis"
	"github.com/homies-app/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var (
		pool       *pgxpool.Pool
		eventStore events.Store
		userStore  auth.UserStore
	)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		dsn := cfg.Database.DSN()
		if err := database.Migrate(dsn, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		pool, err = database.NewPostgresPool(ctx, dsn, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		eventStore = events.NewRepository(pool)
		userStore = auth.NewRepository(pool)
	case config.StoreDriverMemory:
		mem := events.NewMemoryStore("Animals", "Fun", "Discussion", "Work")
		users := auth.NewMemoryUserStore()
		users.OnCreate = func(u models.User) {
			mem.SetUserName(u.ID.String(), u.DisplayName())
		}
		eventStore, userStore = mem, users
		logger.Warn("using in-memory store; data is lost on restart")
	}

	// Redis is optional for the API. Without it only the in-process features run.
	var (
		notifier events.Notifier
		purger   events.CachePurger
		cacheMW  gin.HandlerFunc
		hub      = realtime.NewHub(logger, nil, nil)
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, cache and notifications disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			// The worker resolves events from postgres, so memory mode does not publish.
			if pool != nil {
				notifier = queue.NewQueue(rdb.Client, logger)
			}
			purger = middleware.NewCacheInvalidator(rdb.Client, logger)
			cacheMW = middleware.ResponseCache(rdb.Client, cfg.Cache.TTL, logger)
			pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
			hub = realtime.NewHub(logger, pubsub, pubsub)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(userStore, jwtService, cfg.Auth.IsAdminEmail, logger)

	eventService := events.NewService(eventStore, notifier, logger)
	eventService.SetBroadcaster(hub)
	eventHandler := events.NewHandler(eventService, purger, logger)

	joinLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RPS:     cfg.RateLimit.RPS,
		Burst:   cfg.RateLimit.Burst,
		IdleTTL: cfg.RateLimit.IdleTTL,
	})
	defer joinLimiter.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		if pool != nil {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(pingCtx); err != nil {
				response.ServiceUnavailable(c, "database unreachable")
				return
			}
		}
		response.OK(c, gin.H{"status": "ok", "store": cfg.Store.Driver})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	requireAuth := middleware.JWT(jwtService)
	eventHandler.Routes(router, events.RouteOptions{
		Auth:      requireAuth,
		Admin:     middleware.RequireRole(models.RoleAdmin),
		Cache:     cacheMW,
		JoinLimit: joinLimiter.Middleware(middleware.ByUserOrIP),
	})

	router.GET("/events/:id/live", realtime.ServeWs(hub, eventService, logger))

	// The notification log lives in postgres only.
	if pool != nil {
		notificationHandler := notifications.NewHandler(notifications.NewRepository(pool))
		router.GET("/events/:id/notifications", requireAuth, eventHandler.RequireOrganiser(), notificationHandler.ListByEvent)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
