package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yieldvault/yield_service/internal/adapters/notification"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/account"
	"github.com/yieldvault/yield_service/internal/domain/services/accrual"
	"github.com/yieldvault/yield_service/internal/domain/services/investment"
	"github.com/yieldvault/yield_service/internal/domain/services/payment"
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/internal/domain/services/withdrawal"
	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/internal/infrastructure/config"
	"github.com/yieldvault/yield_service/internal/infrastructure/database"
	"github.com/yieldvault/yield_service/internal/workers/accrual_worker"
	"github.com/yieldvault/yield_service/internal/workers/maintenance"
	"github.com/yieldvault/yield_service/internal/workers/payment_reconciler"
	"github.com/yieldvault/yield_service/pkg/auth"
	"github.com/yieldvault/yield_service/pkg/idempotency"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	ZapLog *zap.Logger
	Policy entities.LedgerPolicy

	// Infrastructure
	DB          *sqlx.DB
	Store       repositories.Store
	Idempotency idempotency.Store
	RedisClient cache.RedisClient
	Locker      cache.Locker
	Revocations auth.Revocations

	// External services
	Integrations *Integrations
	Notifier     notification.OpsNotifier

	// Domain services
	SettlementService *settlement.Service
	AccountService    *account.Service
	InvestmentService *investment.Service
	AccrualService    *accrual.Service
	WithdrawalService *withdrawal.Service
	PaymentService    *payment.Service

	// Workers
	AccrualWorker     *accrual_worker.Worker
	Reconciler        *payment_reconciler.Reconciler
	MaintenanceWorker *maintenance.Worker
}

// NewContainer creates and wires the application dependencies
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()

	policy, err := cfg.Ledger.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid ledger policy: %w", err)
	}

	infra := NewInfrastructureBuilder(cfg, zapLog)
	persistence, err := infra.BuildPersistence()
	if err != nil {
		return nil, err
	}
	coordination, err := infra.BuildCoordination()
	if err != nil {
		if persistence.DB != nil {
			persistence.DB.Close()
		}
		return nil, err
	}

	c := &Container{
		Config:       cfg,
		Logger:       log,
		ZapLog:       zapLog,
		Policy:       policy,
		DB:           persistence.DB,
		Store:        persistence.Store,
		Idempotency:  persistence.Idempotency,
		RedisClient:  coordination.Redis,
		Locker:       coordination.Locker,
		Revocations:  coordination.Revocations,
		Integrations: BuildIntegrations(cfg, log),
	}
	c.Notifier = c.Integrations.Notifier

	c.initializeDomainServices()
	if err := c.initializeWorkers(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Container) initializeDomainServices() {
	c.SettlementService = settlement.NewService(c.Store, c.Policy, c.Logger.With("service", "settlement"))
	c.WithdrawalService = withdrawal.NewService(c.Store, c.Policy, c.Notifier, c.Logger.With("service", "withdrawal"))
	c.AccountService = account.NewService(c.Store, c.Policy, c.WithdrawalService, c.Logger.With("service", "account"))
	c.InvestmentService = investment.NewService(c.Store, c.SettlementService, c.Policy, c.Logger.With("service", "investment"))

	c.AccrualService = accrual.NewService(c.Store, c.Policy, c.Logger.With("service", "accrual"))
	if c.Config.Accrual.BatchSize > 0 {
		c.AccrualService.SetBatchSize(c.Config.Accrual.BatchSize)
	}

	c.PaymentService = payment.NewService(
		c.Store,
		c.SettlementService,
		c.Integrations.Gateway,
		c.Integrations.Verifier,
		c.Policy,
		payment.Config{
			DepositAddress: c.Config.Tron.DepositAddress,
			BatchSize:      c.Config.Reconciler.BatchSize,
			MinAge:         time.Duration(c.Config.Reconciler.MinAge) * time.Second,
		},
		c.Logger.With("service", "payment"),
	)
}

func (c *Container) initializeWorkers() error {
	c.AccrualWorker = accrual_worker.NewWorker(
		accrual_worker.Config{
			Enabled:  c.Config.Accrual.Enabled,
			Schedule: c.Config.Accrual.Schedule,
			LockTTL:  time.Duration(c.Config.Accrual.LockTTL) * time.Second,
		},
		c.AccrualService,
		c.Locker,
		c.Notifier,
		c.Logger.With("worker", "accrual"),
	)

	reconciler, err := payment_reconciler.NewReconciler(
		payment_reconciler.Config{
			Enabled:    c.Config.Reconciler.Enabled,
			Interval:   time.Duration(c.Config.Reconciler.Interval) * time.Second,
			RunTimeout: time.Duration(c.Config.Reconciler.RunTimeout) * time.Second,
		},
		c.PaymentService,
		c.Locker,
		c.Logger.With("worker", "payment_reconciler"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment reconciler: %w", err)
	}
	c.Reconciler = reconciler

	c.MaintenanceWorker = maintenance.NewWorker(c.ZapLog,
		maintenance.ExpiredRecordsJob(
			"idempotency_cleanup",
			c.Config.Maintenance.IdempotencyCleanupSchedule,
			c.Idempotency.DeleteExpired,
			c.ZapLog,
		),
	)

	return nil
}

// StartWorkers starts the scheduled jobs and the reconciliation poller
func (c *Container) StartWorkers(ctx context.Context) error {
	if err := c.AccrualWorker.Start(); err != nil {
		return fmt.Errorf("failed to start accrual worker: %w", err)
	}
	if err := c.Reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start payment reconciler: %w", err)
	}
	if err := c.MaintenanceWorker.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance worker: %w", err)
	}
	return nil
}

// PingDatabase reports database reachability. The memory store is always up.
func (c *Container) PingDatabase(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	database.RecordPoolStats(c.DB)
	return database.HealthCheck(ctx, c.DB)
}

// PingRedis reports Redis reachability when Redis is configured
func (c *Container) PingRedis(ctx context.Context) error {
	if c.RedisClient == nil {
		return nil
	}
	return c.RedisClient.Ping(ctx)
}

// Close releases connections held by the container
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
