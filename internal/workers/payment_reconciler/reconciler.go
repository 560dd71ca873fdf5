// Package payment_reconciler periodically settles payments whose webhook
// never arrived and TRC20 transfers nobody verified
package payment_reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

const lockKey = "payment-reconciler"

// Source is the payment service's reconciliation surface
type Source interface {
	ReconcilePendingPayments(ctx context.Context) (*entities.ReconcileReport, error)
	ReconcilePendingTransfers(ctx context.Context) (*entities.ReconcileReport, error)
}

// Config holds configuration for the reconciler
type Config struct {
	Enabled    bool
	Interval   time.Duration
	RunTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   5 * time.Minute,
		RunTimeout: 4 * time.Minute,
	}
}

// Result is one reconciler pass
type Result struct {
	Payments  *entities.ReconcileReport `json:"payments"`
	Transfers *entities.ReconcileReport `json:"transfers"`
}

// Reconciler runs the fallback poll on a ticker
type Reconciler struct {
	config Config
	source Source
	locker cache.Locker
	logger *logger.Logger

	runsCounter       metric.Int64Counter
	confirmedCounter  metric.Int64Counter
	failedCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewReconciler creates a new reconciliation worker
func NewReconciler(config Config, source Source, locker cache.Locker, log *logger.Logger) (*Reconciler, error) {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.RunTimeout <= 0 || config.RunTimeout > config.Interval {
		config.RunTimeout = config.Interval
	}

	meter := otel.Meter("payment-reconciliation")

	runsCounter, err := meter.Int64Counter(
		"reconciliation.runs.total",
		metric.WithDescription("Total number of reconciliation runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	confirmedCounter, err := meter.Int64Counter(
		"reconciliation.confirmed.total",
		metric.WithDescription("Total number of deposits confirmed by reconciliation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create confirmed counter: %w", err)
	}

	failedCounter, err := meter.Int64Counter(
		"reconciliation.failed.total",
		metric.WithDescription("Total number of deposits failed or rejected by reconciliation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	durationHistogram, err := meter.Float64Histogram(
		"reconciliation.duration.seconds",
		metric.WithDescription("Reconciliation duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		config:            config,
		source:            source,
		locker:            locker,
		logger:            log,
		runsCounter:       runsCounter,
		confirmedCounter:  confirmedCounter,
		failedCounter:     failedCounter,
		durationHistogram: durationHistogram,
		shutdownCtx:       ctx,
		shutdownCancel:    cancel,
	}, nil
}

// Start begins the reconciliation loop
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Info("Payment reconciler is disabled")
		return nil
	}

	r.logger.Info("Starting payment reconciler", "interval", r.config.Interval)

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Shutdown gracefully stops the reconciler
func (r *Reconciler) Shutdown(timeout time.Duration) error {
	r.shutdownCancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Payment reconciler shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdownCtx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(r.shutdownCtx, r.config.RunTimeout)
			if _, err := r.RunOnce(runCtx); err != nil && !domainerrors.IsConflict(err) {
				r.logger.Error("Reconciliation run failed", "error", err)
			}
			cancel()
		}
	}
}

// RunOnce performs one pass over open payment intents and pending
// transfers. A pass already running on any replica yields a conflict.
func (r *Reconciler) RunOnce(ctx context.Context) (*Result, error) {
	lease, err := r.locker.Acquire(ctx, lockKey, r.config.RunTimeout)
	if errors.Is(err, cache.ErrLockHeld) {
		r.logger.Debug("Reconciliation already running elsewhere")
		return nil, domainerrors.ConflictError("reconciliation run", "already in progress")
	}
	if err != nil {
		return nil, domainerrors.ServiceUnavailableError("lock", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			r.logger.Warn("Failed to release reconciler lock", "error", err)
		}
	}()

	start := time.Now()
	result := &Result{}
	var errs []error

	result.Payments, err = r.pass(ctx, "payments", r.source.ReconcilePendingPayments)
	if err != nil {
		errs = append(errs, err)
	}
	result.Transfers, err = r.pass(ctx, "transfers", r.source.ReconcilePendingTransfers)
	if err != nil {
		errs = append(errs, err)
	}

	r.durationHistogram.Record(ctx, time.Since(start).Seconds())
	return result, errors.Join(errs...)
}

func (r *Reconciler) pass(ctx context.Context, kind string, fn func(context.Context) (*entities.ReconcileReport, error)) (*entities.ReconcileReport, error) {
	attrs := metric.WithAttributes(attribute.String("type", kind))

	metrics.ReconciliationRunsInProgress.WithLabelValues(kind).Inc()
	defer metrics.ReconciliationRunsInProgress.WithLabelValues(kind).Dec()
	r.runsCounter.Add(ctx, 1, attrs)

	report, err := fn(ctx)
	if err != nil {
		metrics.ReconciliationRunsTotal.WithLabelValues(kind, "error").Inc()
		return report, fmt.Errorf("%s reconciliation: %w", kind, err)
	}

	metrics.ReconciliationRunsTotal.WithLabelValues(kind, "completed").Inc()
	r.confirmedCounter.Add(ctx, int64(report.Confirmed), attrs)
	r.failedCounter.Add(ctx, int64(report.Failed), attrs)

	if report.Checked > 0 {
		r.logger.Info("Reconciliation pass completed",
			"type", kind,
			"checked", report.Checked,
			"confirmed", report.Confirmed,
			"failed", report.Failed,
			"pending", report.Pending,
			"errors", report.Errors)
	}
	return report, nil
}
