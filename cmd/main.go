package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/api/routes"
	"github.com/yieldvault/yield_service/internal/infrastructure/config"
	"github.com/yieldvault/yield_service/internal/infrastructure/di"
	"github.com/yieldvault/yield_service/pkg/graceful"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/tracing"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

// @title Yield Service API
// @version 1.0
// @description USDT ledger and accrual engine
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		CollectorURL:   cfg.Tracing.CollectorURL,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
		Attributes: map[string]string{
			"ledger.asset":          "USDT",
			"ledger.chain":          "tron",
			"ledger.token_contract": cfg.Tron.TokenContract,
		},
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container, Version)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	if err := container.StartWorkers(workerCtx); err != nil {
		cancelWorkers()
		log.Fatal("Failed to start workers", "error", err)
	}

	shutdown := graceful.NewShutdownManager(server, log, container)
	shutdown.Register(graceful.ShutdownFunc(func(time.Duration) error {
		cancelWorkers()
		return nil
	}))
	shutdown.Register(container.AccrualWorker)
	shutdown.Register(container.Reconciler)
	shutdown.Register(container.MaintenanceWorker)
	shutdown.Register(router)

	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"version", Version,
			"database_driver", cfg.Database.Driver,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	shutdown.WaitForShutdown()

	// Flush spans after the server has drained
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracingShutdown(ctx); err != nil {
		log.Warn("Tracer shutdown error", "error", err)
	}
}
