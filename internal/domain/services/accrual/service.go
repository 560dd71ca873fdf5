// Package accrual credits daily interest to investor accounts
package accrual

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
	"github.com/yieldvault/yield_service/pkg/tracing"
)

const defaultBatchSize = 500

type outcome string

const (
	outcomeCredited       outcome = "credited"
	outcomeDormant        outcome = "dormant"
	outcomeAlreadyAccrued outcome = "already_accrued"
	outcomeNotEligible    outcome = "not_eligible"
	outcomeFailed         outcome = "failed"
)

// Service runs the daily accrual batch
type Service struct {
	store     repositories.Store
	policy    entities.LedgerPolicy
	batchSize int
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a new accrual service
func NewService(store repositories.Store, policy entities.LedgerPolicy, logger *logger.Logger) *Service {
	return &Service{
		store:     store,
		policy:    policy,
		batchSize: defaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBatchSize sets how many account ids are fetched per page
func (s *Service) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Quote computes today's interest for an account without applying it
func (s *Service) Quote(account *entities.Account) Quote {
	return Compute(s.policy, account, s.now())
}

// RunDailyAccrual credits one day of interest, for the UTC day containing
// asOf, to every active account holding the minimum principal. Each account
// is credited in its own transaction together with a per-day marker, so
// re-running the same day credits nothing twice. Failures are isolated per
// account and listed in the report. Matured lock-ins are unlocked afterwards.
func (s *Service) RunDailyAccrual(ctx context.Context, asOf time.Time) (*entities.AccrualRunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "accrual.RunDailyAccrual")
	defer span.End()

	date := entities.AccrualDate(asOf)
	report := &entities.AccrualRunReport{
		AccrualDate:   date,
		TotalInterest: decimal.Zero,
		StartedAt:     s.now(),
	}
	span.SetAttributes(attribute.String("accrual.date", date.Format("2006-01-02")))

	s.logger.Info("Starting daily accrual", "accrual_date", date.Format("2006-01-02"))

	after := uuid.Nil
	for {
		ids, err := s.store.Repos().Accounts.ListAccrualCandidates(ctx, s.policy.MinAccrualPrincipal, after, s.batchSize)
		if err != nil {
			tracing.RecordError(span, err)
			metrics.AccrualRunsTotal.WithLabelValues("error").Inc()
			return report, fmt.Errorf("failed to list accrual candidates: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.accrueOne(ctx, id, date, asOf, report)
		}
		after = ids[len(ids)-1]
	}

	unlocked, err := s.store.Repos().Investments.UnlockMatured(ctx, asOf)
	if err != nil {
		s.logger.Error("Failed to unlock matured investments", "error", err)
		tracing.RecordError(span, err)
		metrics.AccrualRunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to unlock matured investments: %w", err)
	}
	report.Unlocked = unlocked
	report.FinishedAt = s.now()

	result := "success"
	if report.Partial() {
		result = "partial"
	}
	metrics.AccrualRunsTotal.WithLabelValues(result).Inc()
	metrics.AccrualRunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	s.logger.Info("Daily accrual completed",
		"accrual_date", date.Format("2006-01-02"),
		"processed", report.Processed,
		"credited", report.Credited,
		"skipped_dormant", report.SkippedDormant,
		"skipped_existing", report.SkippedExisting,
		"failed", len(report.Failed),
		"total_interest", report.TotalInterest.String(),
		"unlocked", report.Unlocked)

	return report, nil
}

func (s *Service) accrueOne(ctx context.Context, accountID uuid.UUID, date, asOf time.Time, report *entities.AccrualRunReport) {
	report.Processed++

	result, amount, err := s.accrueAccount(ctx, accountID, date, asOf)
	if err != nil {
		result = outcomeFailed
		report.Failed = append(report.Failed, entities.AccrualFailure{AccountID: accountID, Error: err.Error()})
		s.logger.Error("Accrual failed for account",
			"account_id", accountID.String(),
			"accrual_date", date.Format("2006-01-02"),
			"error", err)
	}
	metrics.AccrualAccountsTotal.WithLabelValues(string(result)).Inc()

	switch result {
	case outcomeCredited:
		report.Credited++
		report.TotalInterest = report.TotalInterest.Add(amount)
	case outcomeDormant:
		report.SkippedDormant++
	case outcomeAlreadyAccrued:
		report.SkippedExisting++
	case outcomeNotEligible:
		report.SkippedOther++
	}
}

func (s *Service) accrueAccount(ctx context.Context, accountID uuid.UUID, date, asOf time.Time) (outcome, decimal.Decimal, error) {
	result := outcomeNotEligible
	credited := decimal.Zero

	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		account, err := tx.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		// eligibility may have changed since the candidate page was read
		if account.Status != entities.AccountStatusActive || account.Principal.LessThan(s.policy.MinAccrualPrincipal) {
			return nil
		}

		quote := Compute(s.policy, account, asOf)
		if quote.Dormant {
			result = outcomeDormant
			return nil
		}
		if !quote.Interest.IsPositive() {
			return nil
		}

		inserted, err := tx.AccrualMarkers.TryInsert(ctx, &entities.AccrualMarker{
			ID:          uuid.New(),
			AccountID:   accountID,
			AccrualDate: date,
			Rate:        quote.Rate,
			Amount:      quote.Interest,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			result = outcomeAlreadyAccrued
			return nil
		}

		account.CreditInterest(quote.Interest, entities.MonthPeriod(date))
		account.UpdatedAt = s.now()
		if err := tx.Accounts.Update(ctx, account); err != nil {
			return err
		}

		result = outcomeCredited
		credited = quote.Interest
		return nil
	})
	if err != nil {
		return outcomeFailed, decimal.Zero, err
	}

	return result, credited, nil
}
