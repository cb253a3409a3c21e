// Package main runs the background worker that e-mails organisers about
// participation changes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/homies-app/backend/config"
	"github.com/homies-app/backend/internal/auth"
	"github.com/homies-app/backend/internal/events"
	"github.com/homies-app/backend/internal/notifications"
	"github.com/homies-app/backend/internal/worker"
	"github.com/homies-app/backend/pkg/database"
	"github.com/homies-app/backend/pkg/queue"
	"github.com/homies-app/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.Fatal("worker requires STORE_DRIVER=postgres", zap.String("store", cfg.Store.Driver))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	mailer := notifications.NewMailer(cfg.Email.ResendAPIKey, cfg.Email.From(), logger)
	if !mailer.Enabled() {
		logger.Warn("RESEND_API_KEY not set, notifications will be logged as skipped")
	}

	processor := worker.NewParticipationProcessor(worker.Config{
		Events:      events.NewRepository(pool),
		Users:       auth.NewRepository(pool),
		Mailer:      mailer,
		Logs:        notifications.NewRepository(pool),
		Queue:       queue.NewQueue(rdb.Client, logger),
		PollTimeout: cfg.Worker.PollTimeout,
		Logger:      logger,
	})

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Worker.PollTimeout + 2*time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
