package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/taskroom/taskroom/internal/app"
	"github.com/taskroom/taskroom/internal/identity"
	jobmetrics "github.com/taskroom/taskroom/internal/jobs"
	"github.com/taskroom/taskroom/internal/platform/db"
	"github.com/taskroom/taskroom/internal/platform/mail"
	"github.com/taskroom/taskroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.RetryPolicy())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	mailer := mail.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	deliveryJob := jobs.NewDeliveryJob(
		identity.NewRepository(pool, cfg.RetryPolicy()),
		mailer,
		cfg.NotifyEmailEnabled,
		logger,
		jobmetrics.NewMetrics(nil),
	)
	if !cfg.NotifyEmailEnabled {
		logger.Info("email delivery disabled, notification tasks will be acknowledged without sending")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationDeliver, Handler: deliveryJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
