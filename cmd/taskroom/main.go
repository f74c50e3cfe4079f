package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/taskroom/taskroom/internal/app"
	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	notificationhttp "github.com/taskroom/taskroom/internal/notification/http"
	"github.com/taskroom/taskroom/internal/observability"
	"github.com/taskroom/taskroom/internal/platform/cache"
	"github.com/taskroom/taskroom/internal/platform/db"
	"github.com/taskroom/taskroom/internal/rooms"
	"github.com/taskroom/taskroom/internal/tasks"
	"github.com/taskroom/taskroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	retry := cfg.RetryPolicy()

	dbpool, err := db.New(ctx, cfg.PGDSN, retry)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, unread counts served from postgres", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	unread := notification.NewUnreadCache(redisClient, cfg.NotifyUnreadTTL, logger)
	sinks := []notification.Sink{jobClient}
	if unread != nil {
		sinks = append(sinks, unread)
	}
	dispatcher := notification.NewDispatcher(logger, sinks...)
	notificationService := notification.NewService(notification.NewRepository(dbpool), unread, notification.ServiceConfig{
		DefaultLimit: cfg.NotifyDefaultLimit,
		MaxLimit:     cfg.NotifyMaxLimit,
	})

	roomService := rooms.NewService(rooms.NewRepository(dbpool, retry), dispatcher, logger, rooms.ServiceConfig{
		MaxCodeAttempts: cfg.RoomCodeMaxAttempts,
	})
	identityService := identity.NewService(identity.NewRepository(dbpool, retry), roomService, dispatcher, logger)
	taskService := tasks.NewService(tasks.NewRepository(dbpool, retry), identityService, dispatcher, metrics, logger)

	authn, err := app.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, logger)
	if err != nil {
		logger.Error("init authenticator", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Authenticator:       authn,
		AccountHandler:      identity.NewHandler(logger, identityService),
		RoomsHandler:        rooms.NewHandler(logger, identityService, roomService),
		TasksHandler:        tasks.NewHandler(logger, identityService, taskService),
		NotificationHandler: notificationhttp.NewHandler(logger, identityService, notificationService),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	logger.Info("http server stopped")
}
