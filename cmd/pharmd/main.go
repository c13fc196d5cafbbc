package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxstock/rxstock/internal/alerts"
	"github.com/rxstock/rxstock/internal/app"
	"github.com/rxstock/rxstock/internal/platform/cache"
	"github.com/rxstock/rxstock/internal/platform/db"
	"github.com/rxstock/rxstock/internal/shared"
	"github.com/rxstock/rxstock/internal/stock"
	"github.com/rxstock/rxstock/internal/transfer"
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
		logger.Warn("redis unavailable, alert cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, stock.ServiceConfig{
		DefaultMinimumQty: cfg.StockDefaultMinimum,
	})
	stockHandler := stock.NewHandler(logger, stockService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, auditLogger, idempotencyStore, transfer.ServiceConfig{
		AllowShortReceive: cfg.TransferAllowShortReceive,
		DefaultMinimumQty: cfg.StockDefaultMinimum,
	})
	transferHandler := transfer.NewHandler(logger, transferService)

	var alertsHandler *alerts.Handler
	if redisClient != nil {
		alertsCache := alerts.NewCache(redisClient, cfg.AlertsCacheTTL)
		alertsService := alerts.NewService(stockRepo, alertsCache)
		alertsHandler = alerts.NewHandler(logger, alertsService)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		StockHandler:    stockHandler,
		TransferHandler: transferHandler,
		AlertsHandler:   alertsHandler,
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
