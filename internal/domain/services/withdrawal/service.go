// Package withdrawal admits withdrawal requests against the ledger's caps and
// applies admin decisions. Balances are debited only when a request is
// processed.
package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
	"github.com/yieldvault/yield_service/pkg/security"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// monthlyGateStatuses are the statuses that use up the monthly interest withdrawal
var monthlyGateStatuses = []entities.WithdrawalStatus{
	entities.WithdrawalStatusPending,
	entities.WithdrawalStatusApproved,
	entities.WithdrawalStatusProcessed,
}

var (
	outstandingStatuses = []entities.WithdrawalStatus{entities.WithdrawalStatusPending, entities.WithdrawalStatusApproved}
	processedStatuses   = []entities.WithdrawalStatus{entities.WithdrawalStatusProcessed}
)

// Notifier is told about new requests so operators can review them
type Notifier interface {
	NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error
}

// Service handles withdrawal requests
type Service struct {
	store    repositories.Store
	policy   entities.LedgerPolicy
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a new withdrawal service. notifier may be nil.
func NewService(store repositories.Store, policy entities.LedgerPolicy, notifier Notifier, logger *logger.Logger) *Service {
	return &Service{
		store:    store,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// InterestCap is the most interest an account may withdraw right now: the
// accrued interest, bounded by a share of this month's accrual.
func InterestCap(policy entities.LedgerPolicy, account *entities.Account, now time.Time) decimal.Decimal {
	monthly := account.MonthlyInterestFor(entities.MonthPeriod(now))
	limit := monthly.Mul(policy.InterestWithdrawCap)
	return decimal.Min(account.InterestAccrued, limit)
}

// Request validates and records a pending withdrawal request
func (s *Service) Request(ctx context.Context, ownerID uuid.UUID, req *entities.CreateWithdrawalRequest) (*entities.WithdrawalRequest, error) {
	if !req.Kind.IsValid() {
		return nil, domainerrors.ValidationError("kind", "must be interest or principal")
	}
	address := strings.TrimSpace(req.DestinationAddress)
	if address == "" {
		return nil, domainerrors.ValidationError("destinationAddress", "destination address is required")
	}
	if req.Amount.LessThan(s.policy.MinWithdrawal) {
		return nil, domainerrors.MinimumAmountError("amount", s.policy.MinWithdrawal.String(), req.Amount.String())
	}

	var created *entities.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		now := s.now()

		// the account lock serializes concurrent requests of one owner
		account, err := tx.Accounts.GetForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		if account.Status == entities.AccountStatusFrozen {
			return domainerrors.AccountFrozenError(ownerID.String())
		}

		if req.Kind == entities.WithdrawalKindInterest {
			count, err := tx.Withdrawals.CountInWindow(ctx, ownerID, entities.WithdrawalKindInterest, monthlyGateStatuses,
				entities.MonthStart(now), entities.MonthStart(now).AddDate(0, 1, 0))
			if err != nil {
				return fmt.Errorf("failed to count withdrawals: %w", err)
			}
			if count > 0 {
				return domainerrors.ErrMonthlyWithdrawalTaken
			}
		}

		if err := s.checkLimits(ctx, tx, account, req.Kind, req.Amount, nil, now); err != nil {
			return err
		}

		created = &entities.WithdrawalRequest{
			ID:                 uuid.New(),
			OwnerID:            ownerID,
			RequestedAmount:    req.Amount,
			Kind:               req.Kind,
			DestinationAddress: address,
			Status:             entities.WithdrawalStatusPending,
			RequestedAt:        now,
			UpdatedAt:          now,
		}
		return tx.Withdrawals.Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(created.Kind), string(created.Status)).Inc()
	s.logger.Info("Withdrawal requested",
		"withdrawal_id", created.ID.String(),
		"account_id", ownerID.String(),
		"kind", string(created.Kind),
		"amount", created.RequestedAmount.String(),
		"destination", security.MaskAddress(created.DestinationAddress))

	if s.notifier != nil {
		if err := s.notifier.NotifyWithdrawalRequested(ctx, created); err != nil {
			s.logger.Warn("Failed to notify operators of withdrawal request",
				"withdrawal_id", created.ID.String(),
				"error", err)
		}
	}

	return created, nil
}

// checkLimits applies the principal minimum and the per-kind amount cap.
// excludeID leaves the request being re-validated out of the outstanding sum.
func (s *Service) checkLimits(ctx context.Context, tx *repositories.Repositories, account *entities.Account, kind entities.WithdrawalKind, amount decimal.Decimal, excludeID *uuid.UUID, now time.Time) error {
	if account.Principal.LessThan(s.policy.WithdrawalMinBalance) {
		return domainerrors.NotEligibleError(fmt.Sprintf("withdrawals unlock once principal reaches %s", s.policy.WithdrawalMinBalance.String()))
	}

	switch kind {
	case entities.WithdrawalKindInterest:
		limit := InterestCap(s.policy, account, now)
		if amount.GreaterThan(limit) {
			return domainerrors.WithdrawalCapError(string(kind), limit.String(), amount.String())
		}
	case entities.WithdrawalKindPrincipal:
		limit, _, err := s.principalLimit(ctx, tx, account, excludeID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(limit) {
			return domainerrors.WithdrawalCapError(string(kind), limit.String(), amount.String())
		}
	}
	return nil
}

// principalLimit returns the principal still withdrawable, together with the
// outstanding total. Processed requests count against unlocked principal;
// the available balance already has them debited.
func (s *Service) principalLimit(ctx context.Context, repos *repositories.Repositories, account *entities.Account, excludeID *uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	unlocked, err := repos.Investments.SumWithdrawablePrincipal(ctx, account.ID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum withdrawable principal: %w", err)
	}
	outstanding, err := repos.Withdrawals.SumPrincipal(ctx, account.ID, outstandingStatuses, excludeID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum outstanding withdrawals: %w", err)
	}
	processed, err := repos.Withdrawals.SumPrincipal(ctx, account.ID, processedStatuses, excludeID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum processed withdrawals: %w", err)
	}

	limit := decimal.Min(
		unlocked.Sub(outstanding).Sub(processed),
		account.AvailablePrincipal.Sub(outstanding),
	)
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	return limit, outstanding, nil
}

// Decide applies an admin decision. Approval re-validates the caps and
// processing debits the balance exactly once; any transition out of a
// terminal status is a conflict.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, req *entities.DecideWithdrawalRequest, adminID uuid.UUID) (*entities.WithdrawalRequest, error) {
	target, ok := req.Decision.TargetStatus()
	if !ok {
		return nil, domainerrors.ValidationError("decision", "unknown decision")
	}

	var out *entities.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		w, err := tx.Withdrawals.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := w.Status.ValidateTransition(target); err != nil {
			return domainerrors.InvalidTransitionError("withdrawal", string(w.Status), string(target))
		}

		now := s.now()
		switch target {
		case entities.WithdrawalStatusApproved:
			account, err := tx.Accounts.GetForUpdate(ctx, w.OwnerID)
			if err != nil {
				return err
			}
			if err := s.checkLimits(ctx, tx, account, w.Kind, w.RequestedAmount, &w.ID, now); err != nil {
				return err
			}
			w.DecidedAt = &now
		case entities.WithdrawalStatusProcessed:
			if err := s.debit(ctx, tx, w, now); err != nil {
				return err
			}
			w.ProcessedAt = &now
			if req.PayoutTxHash != "" {
				hash := req.PayoutTxHash
				w.PayoutTxHash = &hash
			}
		default:
			w.DecidedAt = &now
		}

		if req.Note != "" {
			note := req.Note
			w.Note = &note
		}
		w.DecidedBy = &adminID
		w.Status = target
		w.UpdatedAt = now
		if err := tx.Withdrawals.Update(ctx, w); err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(out.Kind), string(out.Status)).Inc()
	s.logger.Info("Withdrawal decided",
		"withdrawal_id", id.String(),
		"decision", string(req.Decision),
		"status", string(out.Status),
		"admin_id", adminID.String())

	return out, nil
}

// debit removes the requested amount from the owner's balance. It refuses to
// drive a balance negative.
func (s *Service) debit(ctx context.Context, tx *repositories.Repositories, w *entities.WithdrawalRequest, now time.Time) error {
	account, err := tx.Accounts.GetForUpdate(ctx, w.OwnerID)
	if err != nil {
		return err
	}

	switch w.Kind {
	case entities.WithdrawalKindInterest:
		if account.InterestAccrued.LessThan(w.RequestedAmount) {
			return domainerrors.InsufficientFundsError(account.InterestAccrued.String(), w.RequestedAmount.String())
		}
		account.InterestAccrued = account.InterestAccrued.Sub(w.RequestedAmount)
	case entities.WithdrawalKindPrincipal:
		if account.AvailablePrincipal.LessThan(w.RequestedAmount) {
			return domainerrors.InsufficientFundsError(account.AvailablePrincipal.String(), w.RequestedAmount.String())
		}
		account.AvailablePrincipal = account.AvailablePrincipal.Sub(w.RequestedAmount)
	}

	account.UpdatedAt = now
	if err := tx.Accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	return nil
}

// Cancel lets an owner withdraw their own pending or approved request
func (s *Service) Cancel(ctx context.Context, ownerID, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	var out *entities.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		w, err := tx.Withdrawals.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.OwnerID != ownerID {
			return domainerrors.ErrNotOwner
		}
		if err := w.Status.ValidateTransition(entities.WithdrawalStatusCancelled); err != nil {
			return domainerrors.InvalidTransitionError("withdrawal", string(w.Status), string(entities.WithdrawalStatusCancelled))
		}

		now := s.now()
		w.Status = entities.WithdrawalStatusCancelled
		w.DecidedAt = &now
		w.UpdatedAt = now
		if err := tx.Withdrawals.Update(ctx, w); err != nil {
			return fmt.Errorf("failed to cancel withdrawal: %w", err)
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(out.Kind), string(out.Status)).Inc()
	s.logger.Info("Withdrawal cancelled by owner",
		"withdrawal_id", id.String(),
		"account_id", ownerID.String())

	return out, nil
}

// List returns the owner's requests, newest first
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Repos().Withdrawals.ListByOwner(ctx, ownerID, limit, offset)
}

// Eligibility reports what the owner could request right now
func (s *Service) Eligibility(ctx context.Context, ownerID uuid.UUID) (*entities.WithdrawalEligibility, error) {
	repos := s.store.Repos()
	account, err := repos.Accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.eligibility(ctx, repos, account)
}

func (s *Service) eligibility(ctx context.Context, repos *repositories.Repositories, account *entities.Account) (*entities.WithdrawalEligibility, error) {
	now := s.now()

	count, err := repos.Withdrawals.CountInWindow(ctx, account.ID, entities.WithdrawalKindInterest, monthlyGateStatuses,
		entities.MonthStart(now), entities.MonthStart(now).AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	limit, outstanding, err := s.principalLimit(ctx, repos, account, nil)
	if err != nil {
		return nil, err
	}

	return &entities.WithdrawalEligibility{
		MeetsPrincipalMinimum:   account.Principal.GreaterThanOrEqual(s.policy.WithdrawalMinBalance),
		InterestCap:             InterestCap(s.policy, account, now),
		InterestRequestedMonth:  count > 0,
		WithdrawablePrincipal:   limit,
		OutstandingPrincipal:    outstanding,
		MinimumWithdrawalAmount: s.policy.MinWithdrawal,
	}, nil
}

// EligibilityFor computes eligibility for an account already loaded
func (s *Service) EligibilityFor(ctx context.Context, account *entities.Account) (*entities.WithdrawalEligibility, error) {
	return s.eligibility(ctx, s.store.Repos(), account)
}
