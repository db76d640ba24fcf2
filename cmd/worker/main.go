package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/lumbung-erp/lumbung-erp/internal/app"
	"github.com/lumbung-erp/lumbung-erp/internal/auth"
	"github.com/lumbung-erp/lumbung-erp/internal/platform/cache"
	"github.com/lumbung-erp/lumbung-erp/internal/platform/db"
	"github.com/lumbung-erp/lumbung-erp/internal/purchase"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/valuation"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
	"github.com/lumbung-erp/lumbung-erp/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	markerStore := shared.NewMarkerStore(pool)

	authRepo := auth.NewRepository(pool)
	purchaseRepo := purchase.NewRepository(pool)
	warehouseRepo := warehouse.NewRepository(pool)
	warehouseService := warehouse.NewService(warehouseRepo, markerStore, purchaseRepo, auditLogger, logger)

	valuationCache := valuation.NewCache(redisClient, cfg.ValuationCacheTTL)
	valuationService := valuation.NewService(warehouseService, valuationCache, logger)
	if err := valuationCache.ListenForStatusChanges(ctx, logger); err != nil {
		logger.Warn("valuation invalidation listener", slog.Any("error", err))
	}

	wacTask, err := jobs.NewWACRecalcTask("")
	if err != nil {
		logger.Error("build wac recalc task", slog.Any("error", err))
		os.Exit(1)
	}
	consistencyTask, err := jobs.NewConsistencyCheckTask("")
	if err != nil {
		logger.Error("build consistency task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewValuationWarmupTask("")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWACRecalc, Handler: jobs.NewWACRecalcHandler(warehouseService, authRepo, logger)},
			{Type: jobs.TaskConsistencyCheck, Handler: jobs.NewConsistencyCheckHandler(warehouseService, authRepo, logger)},
			{Type: jobs.TaskValuationWarmup, Handler: jobs.NewValuationWarmupHandler(valuationService, authRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: wacTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: consistencyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
