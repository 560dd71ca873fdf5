package routes

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/yieldvault/yield_service/docs"
	"github.com/yieldvault/yield_service/internal/api/handlers"
	"github.com/yieldvault/yield_service/internal/api/middleware"
	"github.com/yieldvault/yield_service/internal/infrastructure/di"
	"github.com/yieldvault/yield_service/pkg/idempotency"
	"github.com/yieldvault/yield_service/pkg/tracing"
)

// sensitiveRatePerMin bounds money-moving requests per user
const sensitiveRatePerMin = 20

// Router is the HTTP engine together with the limiters it owns
type Router struct {
	*gin.Engine
	limiters []*middleware.RateLimiter
}

// Shutdown stops the limiter cleanup loops
func (r *Router) Shutdown(timeout time.Duration) error {
	var errs []error
	for _, l := range r.limiters {
		errs = append(errs, l.Shutdown(timeout))
	}
	return errors.Join(errs...)
}

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container, version string) *Router {
	cfg := container.Config
	log := container.Logger

	router := gin.New()

	// Tracing first so every later middleware runs inside the span
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	globalLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMin, middleware.ByClientIP)
	sensitiveLimiter := middleware.NewRateLimiter(sensitiveRatePerMin, middleware.ByUser)
	router.Use(globalLimiter.Limit())
	router.Use(middleware.SecurityHeaders())

	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": container.PingDatabase,
		"redis":    container.PingRedis,
	}, log, version)

	accountHandlers := handlers.NewAccountHandlers(container.AccountService, log)
	investmentHandlers := handlers.NewInvestmentHandlers(container.InvestmentService, container.PaymentService, log)
	paymentHandlers := handlers.NewPaymentHandlers(container.PaymentService, log)
	withdrawalHandlers := handlers.NewWithdrawalHandlers(container.WithdrawalService, log)
	webhookHandlers := handlers.NewWebhookHandlers(
		container.PaymentService,
		cfg.Gateway.WebhookSecret,
		cfg.Gateway.SkipSignatureVerify && !cfg.IsProduction(),
		log,
	)
	adminHandlers := handlers.NewAdminHandlers(
		container.AccountService,
		container.InvestmentService,
		container.SettlementService,
		container.WithdrawalService,
		container.AccrualWorker,
		container.Reconciler,
		log,
	)

	// Health checks (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation (development only)
	if !cfg.IsProduction() {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := router.Group("/api/v1")

	// Gateway callbacks authenticate by signature, not bearer token
	v1.POST("/webhooks/gateway", webhookHandlers.GatewayWebhook)

	protected := v1.Group("/")
	protected.Use(middleware.Authenticate(cfg.JWT.Secret, container.Revocations, log))
	protected.Use(middleware.TrackActivity(container.AccountService, log))
	protected.Use(idempotency.Middleware(container.Idempotency, container.ZapLog))
	{
		accounts := protected.Group("/accounts")
		{
			accounts.POST("/register", accountHandlers.Register)
			accounts.GET("/me", accountHandlers.Me)
		}

		investments := protected.Group("/investments")
		{
			investments.POST("", idempotency.RequireIdempotency(), investmentHandlers.Submit)
			investments.GET("", investmentHandlers.List)
			investments.GET("/:id", investmentHandlers.Get)
			investments.POST("/:id/verify", investmentHandlers.Verify)
			if !cfg.IsProduction() && cfg.Server.EnableManualConfirm {
				investments.POST("/:id/confirm", investmentHandlers.Confirm)
			}
		}

		payments := protected.Group("/payments")
		payments.Use(sensitiveLimiter.Limit())
		{
			payments.POST("", idempotency.RequireIdempotency(), paymentHandlers.Create)
			payments.GET("/:orderRef/status", paymentHandlers.Status)
		}

		withdrawals := protected.Group("/withdrawals")
		withdrawals.Use(sensitiveLimiter.Limit())
		{
			withdrawals.POST("", idempotency.RequireIdempotency(), withdrawalHandlers.Create)
			withdrawals.GET("", withdrawalHandlers.List)
			withdrawals.GET("/eligibility", withdrawalHandlers.Eligibility)
			withdrawals.POST("/:id/cancel", withdrawalHandlers.Cancel)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/investments/grant", adminHandlers.GrantInvestment)
			admin.POST("/investments/:id/confirm", adminHandlers.ConfirmInvestment)
			admin.POST("/investments/:id/reject", adminHandlers.RejectInvestment)
			admin.PATCH("/investments/:id", adminHandlers.UpdateInvestment)
			admin.DELETE("/investments/:id", adminHandlers.DeleteInvestment)

			admin.POST("/withdrawals/:id/decision", adminHandlers.DecideWithdrawal)

			admin.POST("/accounts/:id/freeze", adminHandlers.FreezeAccount)
			admin.POST("/accounts/:id/unfreeze", adminHandlers.UnfreezeAccount)

			admin.POST("/accrual/run", adminHandlers.RunAccrual)
			admin.POST("/payments/reconcile", adminHandlers.ReconcilePayments)
		}
	}

	return &Router{
		Engine:   router,
		limiters: []*middleware.RateLimiter{globalLimiter, sensitiveLimiter},
	}
}

