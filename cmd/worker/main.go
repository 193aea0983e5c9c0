package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/capline-erp/capline/internal/app"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/grants"
	jobmetrics "github.com/capline-erp/capline/internal/jobs"
	"github.com/capline-erp/capline/internal/platform/db"
	"github.com/capline-erp/capline/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)
	recorder := audit.NewRecorder()
	grantsRepo := grants.NewRepository(pool, recorder)
	auditRepo := audit.NewRepository(pool)

	sweepJob := jobs.NewAccessSweepJob(grantsRepo, logger, metrics)
	activityJob := jobs.NewAuditActivityJob(auditRepo, logger, metrics)

	sweepTask, err := jobs.NewAccessSweepTask(0)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	activityTask, err := jobs.NewAuditActivityTask(24)
	if err != nil {
		logger.Error("build activity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessSweepExpired, Handler: sweepJob.Handle},
			{Type: jobs.TaskAuditActivityReport, Handler: activityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 6 * * *", Task: activityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
