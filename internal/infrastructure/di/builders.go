package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yieldvault/yield_service/internal/adapters/gateway"
	"github.com/yieldvault/yield_service/internal/adapters/notification"
	"github.com/yieldvault/yield_service/internal/adapters/tronscan"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/internal/infrastructure/config"
	"github.com/yieldvault/yield_service/internal/infrastructure/database"
	"github.com/yieldvault/yield_service/internal/infrastructure/memstore"
	infrarepos "github.com/yieldvault/yield_service/internal/infrastructure/repositories"
	"github.com/yieldvault/yield_service/pkg/auth"
	"github.com/yieldvault/yield_service/pkg/idempotency"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/retry"
)

// Persistence holds the storage side of the container
type Persistence struct {
	DB          *sqlx.DB
	Store       repositories.Store
	Idempotency idempotency.Store
}

// Coordination holds the cross-replica primitives
type Coordination struct {
	Redis       cache.RedisClient
	Locker      cache.Locker
	Revocations auth.Revocations
}

// Integrations holds the clients for external systems
type Integrations struct {
	Gateway  *gateway.Client
	Verifier *tronscan.Client
	Notifier notification.OpsNotifier
}

// InfrastructureBuilder builds storage and coordination dependencies
type InfrastructureBuilder struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewInfrastructureBuilder creates a new infrastructure builder
func NewInfrastructureBuilder(cfg *config.Config, logger *zap.Logger) *InfrastructureBuilder {
	return &InfrastructureBuilder{cfg: cfg, logger: logger}
}

// BuildPersistence opens Postgres, or the in-process store when the
// memory driver is selected
func (b *InfrastructureBuilder) BuildPersistence() (*Persistence, error) {
	if b.cfg.Database.Driver == "memory" {
		b.logger.Warn("Using in-memory store; all state is lost on restart")
		return &Persistence{
			Store:       memstore.New(),
			Idempotency: idempotency.NewMemoryStore(),
		}, nil
	}

	db, err := database.NewConnection(b.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if b.cfg.Database.AutoMigrate {
		if err := database.RunMigrations(b.cfg.Database.URL, b.cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		b.logger.Info("Database migrations applied", zap.String("path", b.cfg.Database.MigrationsPath))
	}

	return &Persistence{
		DB:          db,
		Store:       infrarepos.NewPostgresStore(db),
		Idempotency: infrarepos.NewIdempotencyRepository(db, b.logger),
	}, nil
}

// BuildCoordination connects Redis for locks and token revocation. Outside
// production a missing Redis degrades to process-local locks.
func (b *InfrastructureBuilder) BuildCoordination() (*Coordination, error) {
	client, err := cache.NewRedisClient(b.cfg.Redis, b.logger)
	if err != nil {
		if b.cfg.IsProduction() {
			return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		b.logger.Warn("Redis unavailable; using process-local locks and no token revocation", zap.Error(err))
		return &Coordination{Locker: cache.NewLocalLocker()}, nil
	}

	return &Coordination{
		Redis:       client,
		Locker:      cache.NewRedisLocker(client),
		Revocations: auth.NewTokenBlacklist(client.Client()),
	}, nil
}

// BuildIntegrations creates the gateway, chain verifier and ops notifier
func BuildIntegrations(cfg *config.Config, log *logger.Logger) *Integrations {
	gatewayClient := gateway.NewClient(gateway.Config{
		Provider:    cfg.Gateway.Provider,
		BaseURL:     cfg.Gateway.BaseURL,
		APIKey:      cfg.Gateway.APIKey,
		CallbackURL: cfg.Gateway.CallbackURL,
		Timeout:     time.Duration(cfg.Gateway.Timeout) * time.Second,
	}, log)

	verifier := tronscan.NewClient(tronscan.Config{
		BaseURL:       cfg.Tron.APIURL,
		APIKey:        cfg.Tron.APIKey,
		TokenContract: cfg.Tron.TokenContract,
		Timeout:       time.Duration(cfg.Tron.Timeout) * time.Second,
		Retry:         retry.DefaultPolicy(),
	}, log)

	notifier := notification.New(notification.SendGridConfig{
		APIKey:    cfg.Notification.SendGridAPIKey,
		FromEmail: cfg.Notification.FromEmail,
		FromName:  cfg.Notification.FromName,
		OpsEmail:  cfg.Notification.OpsEmail,
	}, log)

	if cfg.Notification.SNSTopicARN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		topic, err := notification.NewSNSNotifier(ctx, notification.SNSConfig{
			Region:   cfg.Notification.AWSRegion,
			TopicARN: cfg.Notification.SNSTopicARN,
		}, log)
		if err != nil {
			log.Warn("SNS ops alerts unavailable", "error", err)
		} else {
			notifier = notification.Fanout{notifier, topic}
		}
	}

	return &Integrations{
		Gateway:  gatewayClient,
		Verifier: verifier,
		Notifier: notifier,
	}
}
