// Package investment handles investment submission, rejection and the admin
// correction path. Confirmation always goes through the settlement service.
package investment

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
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service manages investment entries
type Service struct {
	store      repositories.Store
	settlement *settlement.Service
	policy     entities.LedgerPolicy
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates a new investment service
func NewService(store repositories.Store, settlement *settlement.Service, policy entities.LedgerPolicy, logger *logger.Logger) *Service {
	return &Service{
		store:      store,
		settlement: settlement,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Submit records a pending direct investment backed by an on-chain transfer.
// A reference that was already submitted fails with DuplicateReference.
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, req *entities.SubmitInvestmentRequest) (*entities.InvestmentEntry, error) {
	ref := strings.TrimSpace(req.ExternalRef)
	if ref == "" {
		return nil, domainerrors.ValidationError("externalRef", "transaction reference is required")
	}
	if entities.IsReservedRef(ref) {
		return nil, domainerrors.ValidationError("externalRef", "transaction reference uses a reserved prefix")
	}
	if req.Amount.LessThan(s.policy.MinInvestment) {
		return nil, domainerrors.MinimumAmountError("amount", s.policy.MinInvestment.String(), req.Amount.String())
	}

	account, err := s.store.Repos().Accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.Status == entities.AccountStatusFrozen {
		return nil, domainerrors.AccountFrozenError(ownerID.String())
	}

	now := s.now()
	entry := &entities.InvestmentEntry{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Amount:      req.Amount,
		Origin:      entities.InvestmentOriginDirect,
		Status:      entities.InvestmentStatusPending,
		ExternalRef: ref,
		LockInDays:  s.policy.DefaultLockInDays,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Repos().Investments.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Investment submitted",
		"investment_id", entry.ID.String(),
		"account_id", ownerID.String(),
		"amount", entry.Amount.String())

	return entry, nil
}

// GetForOwner returns an entry only when it belongs to ownerID
func (s *Service) GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*entities.InvestmentEntry, error) {
	entry, err := s.store.Repos().Investments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		// do not reveal other users' entries
		return nil, domainerrors.ErrInvestmentNotFound
	}
	return entry, nil
}

// List returns the owner's entries, newest first
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.InvestmentEntry, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Repos().Investments.ListByOwner(ctx, ownerID, limit, offset)
}

// ConfirmByOwner is the manual confirmation path available to users outside
// production.
func (s *Service) ConfirmByOwner(ctx context.Context, ownerID, id uuid.UUID) (*settlement.Result, error) {
	if _, err := s.GetForOwner(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.settlement.Confirm(ctx, id, entities.TriggerUserManual)
}

// Reject moves a pending entry to rejected. Rejected is terminal.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason, adminID string) (*entities.InvestmentEntry, error) {
	var out *entities.InvestmentEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		entry, err := tx.Investments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reject(entry, reason); err != nil {
			return err
		}
		if err := tx.Investments.Update(ctx, entry); err != nil {
			return fmt.Errorf("failed to reject investment: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Investment rejected",
		"investment_id", id.String(),
		"admin_id", adminID,
		"reason", reason)

	return out, nil
}

func (s *Service) reject(entry *entities.InvestmentEntry, reason string) error {
	if err := entry.Status.ValidateTransition(entities.InvestmentStatusRejected); err != nil {
		return domainerrors.InvalidTransitionError("investment", string(entry.Status), string(entities.InvestmentStatusRejected))
	}
	now := s.now()
	entry.Status = entities.InvestmentStatusRejected
	entry.RejectionReason = &reason
	entry.Withdrawable = false
	entry.UpdatedAt = now
	return nil
}

// AdminUpdate applies an operator correction. An amount change on a
// confirmed entry moves the account balances by the difference only, a
// change to confirmed runs settlement in the same transaction, and a lock-in
// change recomputes withdrawability.
func (s *Service) AdminUpdate(ctx context.Context, id uuid.UUID, req *entities.AdminUpdateInvestmentRequest, adminID string) (*entities.InvestmentEntry, error) {
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, domainerrors.ValidationError("amount", "must be positive")
	}
	if req.LockInDays != nil && *req.LockInDays < 0 {
		return nil, domainerrors.ValidationError("lockInDays", "must not be negative")
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, domainerrors.ValidationError("status", "unknown investment status")
	}

	var out *entities.InvestmentEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		entry, err := tx.Investments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()

		target := entry.Status
		if req.Status != nil {
			target = *req.Status
		}
		if target != entry.Status {
			if err := entry.Status.ValidateTransition(target); err != nil {
				return domainerrors.InvalidTransitionError("investment", string(entry.Status), string(target))
			}
		}

		if req.Amount != nil && !req.Amount.Equal(entry.Amount) {
			if entry.Origin == entities.InvestmentOriginDirect && req.Amount.LessThan(s.policy.MinInvestment) {
				return domainerrors.MinimumAmountError("amount", s.policy.MinInvestment.String(), req.Amount.String())
			}
			if entry.IsConfirmed() {
				if err := s.applyDelta(ctx, tx, entry.OwnerID, req.Amount.Sub(entry.Amount)); err != nil {
					return err
				}
			}
			entry.Amount = *req.Amount
		}

		if req.LockInDays != nil {
			entry.LockInDays = *req.LockInDays
			if entry.IsConfirmed() && entry.ConfirmedAt != nil {
				entry.ApplyLockIn(*entry.ConfirmedAt, now)
			}
		}

		if target == entities.InvestmentStatusRejected && entry.Status != target {
			if err := s.reject(entry, "rejected by admin correction"); err != nil {
				return err
			}
		}

		entry.UpdatedAt = now
		if err := tx.Investments.Update(ctx, entry); err != nil {
			return fmt.Errorf("failed to update investment: %w", err)
		}

		if target == entities.InvestmentStatusConfirmed && !entry.IsConfirmed() {
			if _, err := s.settlement.ConfirmInTx(ctx, tx, entry, entities.TriggerAdmin); err != nil {
				return err
			}
		}

		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Investment corrected by admin",
		"investment_id", id.String(),
		"admin_id", adminID,
		"status", string(out.Status),
		"amount", out.Amount.String(),
		"lock_in_days", out.LockInDays)

	return out, nil
}

// AdminDelete removes an entry, reversing its credit first when it was
// confirmed.
func (s *Service) AdminDelete(ctx context.Context, id uuid.UUID, adminID string) error {
	var removed *entities.InvestmentEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		entry, err := tx.Investments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.IsConfirmed() {
			if err := s.applyDelta(ctx, tx, entry.OwnerID, entry.Amount.Neg()); err != nil {
				return err
			}
		}
		if err := tx.Investments.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete investment: %w", err)
		}
		removed = entry
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn("Investment deleted by admin",
		"investment_id", id.String(),
		"account_id", removed.OwnerID.String(),
		"admin_id", adminID,
		"status", string(removed.Status),
		"amount", removed.Amount.String())

	return nil
}

// applyDelta moves the owner's principal balances by delta and re-evaluates
// referral activation when principal grew.
func (s *Service) applyDelta(ctx context.Context, tx *repositories.Repositories, ownerID uuid.UUID, delta decimal.Decimal) error {
	account, err := tx.Accounts.GetForUpdate(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	account.AdjustPrincipal(delta)
	account.UpdatedAt = s.now()
	if err := tx.Accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to adjust account: %w", err)
	}
	if delta.IsPositive() {
		if _, err := s.settlement.ActivateReferral(ctx, tx, account); err != nil {
			return err
		}
	}
	return nil
}
