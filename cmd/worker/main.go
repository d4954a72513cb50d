package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/frostline-erp/frostline/internal/app"
	jobmetrics "github.com/frostline-erp/frostline/internal/jobs"
	"github.com/frostline-erp/frostline/internal/platform/cache"
	"github.com/frostline-erp/frostline/internal/platform/db"
	"github.com/frostline-erp/frostline/internal/reports"
	"github.com/frostline-erp/frostline/internal/shared"
	"github.com/frostline-erp/frostline/internal/warehouse"
	"github.com/frostline-erp/frostline/jobs"
)

// dashboardRefresher adapts reports.Service to the worker's refresh hook.
type dashboardRefresher struct {
	service *reports.Service
}

func (d dashboardRefresher) RefreshDashboard(ctx context.Context) error {
	_, err := d.service.RefreshDashboard(ctx)
	return err
}

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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	notifier := jobs.NewNotifier(logger,
		jobs.SMTPConfig{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom},
		jobs.WhatsAppConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			BaseURL:    cfg.TwilioBaseURL,
		},
	).WithMetrics(metrics)

	idempotency := shared.NewIdempotencyStore(pool)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idempotency.Cleanup(ctx, cfg.IdempotencyTTL); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	}()

	cacheStore := cache.NewStore(redisClient, cfg.DashboardTTL)
	reportsService := reports.NewService(logger, reports.NewPGRepository(pool, warehouse.NewRepository(pool)), cacheStore)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:  asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:     logger,
		Notifier:   notifier,
		Dashboard:  dashboardRefresher{service: reportsService},
		Metrics:    metrics,
		WarmupCron: cfg.WarmupCron,
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
