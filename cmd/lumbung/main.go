package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumbung-erp/lumbung-erp/internal/app"
	"github.com/lumbung-erp/lumbung-erp/internal/auth"
	"github.com/lumbung-erp/lumbung-erp/internal/platform/cache"
	"github.com/lumbung-erp/lumbung-erp/internal/platform/db"
	"github.com/lumbung-erp/lumbung-erp/internal/purchase"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/suppliers"
	"github.com/lumbung-erp/lumbung-erp/internal/valuation"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
	"github.com/lumbung-erp/lumbung-erp/jobs"
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

	tokenStore := shared.NewTokenStore(redisClient, cfg.TokenTTL)
	auditLogger := shared.NewAuditLogger(pool)
	markerStore := shared.NewMarkerStore(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokenStore)
	authHandler := auth.NewHandler(logger, authService)

	supplierRepo := suppliers.NewRepository(pool)
	supplierService := suppliers.NewService(supplierRepo, logger)
	supplierHandler := suppliers.NewHandler(logger, supplierService)

	purchaseRepo := purchase.NewRepository(pool)
	warehouseRepo := warehouse.NewRepository(pool)
	warehouseService := warehouse.NewService(warehouseRepo, markerStore, purchaseRepo, auditLogger, logger)
	warehouseHandler := warehouse.NewHandler(logger, warehouseService)

	notifier := purchase.NewNotifier(redisClient, supplierService, logger)
	purchaseService := purchase.NewService(purchaseRepo, warehouseService, notifier, auditLogger, logger, cfg.RetryOptions())
	purchaseHandler := purchase.NewHandler(logger, purchaseService)

	valuationCache := valuation.NewCache(redisClient, cfg.ValuationCacheTTL)
	valuationService := valuation.NewService(warehouseService, valuationCache, logger)
	valuationHandler := valuation.NewHandler(logger, valuationService)
	if err := valuationCache.ListenForStatusChanges(ctx, logger); err != nil {
		logger.Warn("valuation invalidation listener", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Tokens:           tokenStore,
		AuthHandler:      authHandler,
		PurchaseHandler:  purchaseHandler,
		WarehouseHandler: warehouseHandler,
		SupplierHandler:  supplierHandler,
		ValuationHandler: valuationHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
