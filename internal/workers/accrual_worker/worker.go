// Package accrual_worker schedules the nightly accrual batch
package accrual_worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// Runner executes one accrual day
type Runner interface {
	RunDailyAccrual(ctx context.Context, asOf time.Time) (*entities.AccrualRunReport, error)
}

// Alerter is told about runs with failed accounts
type Alerter interface {
	NotifyAccrualFailures(ctx context.Context, report *entities.AccrualRunReport) error
}

// Config holds the schedule and locking settings
type Config struct {
	Enabled    bool
	Schedule   string
	LockTTL    time.Duration
	RunTimeout time.Duration
}

// Worker runs the accrual batch on a cron schedule. Every run, scheduled
// or manual, holds a distributed lock for its accrual date so only one
// replica credits a given day at a time.
type Worker struct {
	config  Config
	runner  Runner
	locker  cache.Locker
	alerter Alerter
	cron    *cron.Cron
	logger  *logger.Logger
	now     func() time.Time
}

// NewWorker creates the accrual worker. alerter may be nil.
func NewWorker(config Config, runner Runner, locker cache.Locker, alerter Alerter, log *logger.Logger) *Worker {
	if config.Schedule == "" {
		config.Schedule = "5 0 * * *"
	}
	if config.LockTTL <= 0 {
		config.LockTTL = time.Hour
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = config.LockTTL
	}
	return &Worker{
		config:  config,
		runner:  runner,
		locker:  locker,
		alerter: alerter,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  log,
		now:     time.Now,
	}
}

// Start registers the nightly job
func (w *Worker) Start() error {
	if !w.config.Enabled {
		w.logger.Info("Accrual worker is disabled")
		return nil
	}

	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.RunTimeout)
		defer cancel()

		if _, err := w.RunFor(ctx, w.now()); err != nil {
			if domainerrors.IsConflict(err) {
				w.logger.Info("Accrual already running elsewhere, skipping")
				return
			}
			w.logger.Error("Scheduled accrual failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid accrual schedule %q: %w", w.config.Schedule, err)
	}

	w.cron.Start()
	w.logger.Info("Accrual worker started", "schedule", w.config.Schedule)
	return nil
}

// RunFor runs accrual for the UTC day containing asOf under the date lock
func (w *Worker) RunFor(ctx context.Context, asOf time.Time) (*entities.AccrualRunReport, error) {
	date := entities.AccrualDate(asOf).Format("2006-01-02")

	lease, err := w.locker.Acquire(ctx, "accrual:"+date, w.config.LockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, domainerrors.ConflictError("accrual run", "a run for "+date+" is already in progress")
	}
	if err != nil {
		return nil, domainerrors.ServiceUnavailableError("lock", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			w.logger.Warn("Failed to release accrual lock", "accrual_date", date, "error", err)
		}
	}()

	report, err := w.runner.RunDailyAccrual(ctx, asOf)
	if err != nil {
		return report, err
	}

	if report.Partial() && w.alerter != nil {
		if err := w.alerter.NotifyAccrualFailures(ctx, report); err != nil {
			w.logger.Warn("Failed to send accrual failure alert", "accrual_date", date, "error", err)
		}
	}
	return report, nil
}

// Shutdown stops scheduling and waits for a running job
func (w *Worker) Shutdown(timeout time.Duration) error {
	ctx := w.cron.Stop()
	select {
	case <-ctx.Done():
		w.logger.Info("Accrual worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("accrual worker shutdown timeout exceeded")
	}
}
