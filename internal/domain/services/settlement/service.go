// Package settlement is the single path by which an investment becomes
// confirmed: it credits the owner, activates the owner's referral edge and
// pays referral income, all in one transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/referral"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
	"github.com/yieldvault/yield_service/pkg/tracing"
)

// Outcome labels used in logs and metrics
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeAlreadyConfirmed = "already_confirmed"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

// Result describes what a settlement call did
type Result struct {
	Entry             *entities.InvestmentEntry `json:"entry"`
	AlreadyConfirmed  bool                      `json:"alreadyConfirmed"`
	ReferralActivated bool                      `json:"referralActivated"`
	ReferralCredit    *entities.InvestmentEntry `json:"referralCredit,omitempty"`
}

// Event asks the coordinator to settle one investment. Exactly one of
// InvestmentID, ExternalRef or OrderRef identifies it.
type Event struct {
	Trigger      string
	InvestmentID *uuid.UUID
	ExternalRef  string
	OrderRef     string
}

// Service confirms investments and applies their effects
type Service struct {
	store  repositories.Store
	policy entities.LedgerPolicy
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new settlement service
func NewService(store repositories.Store, policy entities.LedgerPolicy, logger *logger.Logger) *Service {
	return &Service{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Dispatch routes an event to the matching settlement operation
func (s *Service) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	switch {
	case ev.OrderRef != "":
		return s.SettlePayment(ctx, ev.OrderRef, ev.Trigger)
	case ev.InvestmentID != nil:
		return s.Confirm(ctx, *ev.InvestmentID, ev.Trigger)
	case ev.ExternalRef != "":
		return s.ConfirmByExternalRef(ctx, ev.ExternalRef, ev.Trigger)
	default:
		return nil, domainerrors.ValidationError("event", "settlement event does not identify an investment")
	}
}

// Confirm settles a pending investment. Confirming an already confirmed
// entry returns AlreadyConfirmed and changes nothing.
func (s *Service) Confirm(ctx context.Context, investmentID uuid.UUID, trigger string) (*Result, error) {
	return s.settle(ctx, trigger, func(ctx context.Context, tx *repositories.Repositories) (*Result, error) {
		entry, err := tx.Investments.GetForUpdate(ctx, investmentID)
		if err != nil {
			return nil, err
		}
		return s.ConfirmInTx(ctx, tx, entry, trigger)
	})
}

// ConfirmByExternalRef settles the pending investment carrying externalRef
func (s *Service) ConfirmByExternalRef(ctx context.Context, externalRef, trigger string) (*Result, error) {
	return s.settle(ctx, trigger, func(ctx context.Context, tx *repositories.Repositories) (*Result, error) {
		found, err := tx.Investments.GetByExternalRef(ctx, externalRef)
		if err != nil {
			return nil, err
		}
		entry, err := tx.Investments.GetForUpdate(ctx, found.ID)
		if err != nil {
			return nil, err
		}
		return s.ConfirmInTx(ctx, tx, entry, trigger)
	})
}

// SettlePayment completes a gateway payment intent. The intent row is locked
// for the whole transaction and the investment reuses the order reference as
// its external reference, so concurrent callers produce one entry.
func (s *Service) SettlePayment(ctx context.Context, orderRef, trigger string) (*Result, error) {
	return s.settle(ctx, trigger, func(ctx context.Context, tx *repositories.Repositories) (*Result, error) {
		intent, err := tx.PaymentIntents.GetByOrderRefForUpdate(ctx, orderRef)
		if err != nil {
			return nil, err
		}

		switch intent.Status {
		case entities.PaymentIntentStatusCompleted:
			if intent.LinkedInvestmentID == nil {
				return nil, domainerrors.InternalError("completed payment intent has no investment", nil)
			}
			entry, err := tx.Investments.GetByID(ctx, *intent.LinkedInvestmentID)
			if err != nil {
				return nil, err
			}
			return &Result{Entry: entry, AlreadyConfirmed: true}, nil
		case entities.PaymentIntentStatusFailed, entities.PaymentIntentStatusCancelled:
			return nil, domainerrors.InvalidTransitionError("payment", string(intent.Status), string(entities.PaymentIntentStatusCompleted))
		}

		now := s.now()
		entry, err := tx.Investments.GetByExternalRef(ctx, orderRef)
		switch {
		case err == nil:
			if entry.OwnerID != intent.OwnerID {
				return nil, domainerrors.DuplicateReferenceError(orderRef)
			}
			if entry, err = tx.Investments.GetForUpdate(ctx, entry.ID); err != nil {
				return nil, err
			}
			if !matchesIntent(entry, intent) {
				s.logger.Warn("Investment under order reference does not match payment intent",
					"order_ref", orderRef,
					"investment_id", entry.ID.String(),
					"status", string(entry.Status),
					"amount", entry.Amount.String(),
					"intent_amount", intent.Amount.String())
				return nil, domainerrors.ConflictError("payment", "investment under this order reference does not match the payment")
			}
		case errors.Is(err, domainerrors.ErrNotFound):
			entry = s.newEntry(intent.OwnerID, intent.Amount, orderRef, s.policy.DefaultLockInDays, now)
			if err := tx.Investments.Create(ctx, entry); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("failed to look up payment investment: %w", err)
		}

		result, err := s.ConfirmInTx(ctx, tx, entry, trigger)
		if err != nil {
			return nil, err
		}

		intent.Status = entities.PaymentIntentStatusCompleted
		intent.LinkedInvestmentID = &result.Entry.ID
		intent.CompletedAt = &now
		intent.UpdatedAt = now
		if err := tx.PaymentIntents.Update(ctx, intent); err != nil {
			return nil, fmt.Errorf("failed to complete payment intent: %w", err)
		}
		return result, nil
	})
}

// matchesIntent reports whether an entry found under an order reference is
// the pending direct investment the intent would have created.
func matchesIntent(entry *entities.InvestmentEntry, intent *entities.PaymentIntent) bool {
	return entry.Status == entities.InvestmentStatusPending &&
		entry.Origin == entities.InvestmentOriginDirect &&
		entry.Amount.Equal(intent.Amount)
}

// Grant creates and confirms an admin credit that has no external payment
func (s *Service) Grant(ctx context.Context, req *entities.GrantInvestmentRequest, adminID string) (*Result, error) {
	if req.Amount.LessThan(s.policy.MinInvestment) {
		return nil, domainerrors.MinimumAmountError("amount", s.policy.MinInvestment.String(), req.Amount.String())
	}
	lockIn := s.policy.DefaultLockInDays
	if req.LockInDays != nil {
		if *req.LockInDays < 0 {
			return nil, domainerrors.ValidationError("lockInDays", "must not be negative")
		}
		lockIn = *req.LockInDays
	}

	result, err := s.settle(ctx, entities.TriggerAdminGrant, func(ctx context.Context, tx *repositories.Repositories) (*Result, error) {
		if _, err := tx.Accounts.GetByID(ctx, req.OwnerID); err != nil {
			return nil, err
		}
		entry := s.newEntry(req.OwnerID, req.Amount, entities.GrantRefPrefix+uuid.NewString(), lockIn, s.now())
		if err := tx.Investments.Create(ctx, entry); err != nil {
			return nil, err
		}
		return s.ConfirmInTx(ctx, tx, entry, entities.TriggerAdminGrant)
	})
	if err == nil {
		s.logger.Info("Admin grant settled",
			"investment_id", result.Entry.ID.String(),
			"account_id", req.OwnerID.String(),
			"admin_id", adminID,
			"note", req.Note)
	}
	return result, err
}

// ConfirmInTx applies confirmation effects to an entry already locked in tx.
// Callers that need settlement as part of a larger change use it directly.
func (s *Service) ConfirmInTx(ctx context.Context, tx *repositories.Repositories, entry *entities.InvestmentEntry, trigger string) (*Result, error) {
	switch entry.Status {
	case entities.InvestmentStatusConfirmed:
		return &Result{Entry: entry, AlreadyConfirmed: true}, nil
	case entities.InvestmentStatusRejected:
		return nil, domainerrors.AlreadyRejectedError(entry.ID.String())
	}

	now := s.now()
	account, err := tx.Accounts.GetForUpdate(ctx, entry.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	entry.Status = entities.InvestmentStatusConfirmed
	entry.ConfirmedAt = &now
	entry.SettledBy = &trigger
	entry.UpdatedAt = now
	if entry.LockInEndsAt == nil {
		entry.ApplyLockIn(now, now)
	} else {
		entry.RecomputeWithdrawable(now)
	}
	if err := tx.Investments.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to confirm investment: %w", err)
	}

	account.CreditPrincipal(entry.Amount)
	account.UpdatedAt = now
	if err := tx.Accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}

	result := &Result{Entry: entry}

	activated, err := referral.ActivateIfEligible(ctx, tx, s.policy, account, now)
	if err != nil {
		return nil, err
	}
	result.ReferralActivated = activated

	if entry.Origin == entities.InvestmentOriginDirect {
		credit, err := s.distribute(ctx, tx, entry, now)
		if err != nil {
			return nil, err
		}
		result.ReferralCredit = credit
	}

	return result, nil
}

// ActivateReferral re-evaluates the owner's referral edge after a principal
// change made outside of confirmation.
func (s *Service) ActivateReferral(ctx context.Context, tx *repositories.Repositories, account *entities.Account) (bool, error) {
	return referral.ActivateIfEligible(ctx, tx, s.policy, account, s.now())
}

// distribute pays referral income on a confirmed direct entry. The credit's
// external reference is derived from the source entry, so it is paid at
// most once.
func (s *Service) distribute(ctx context.Context, tx *repositories.Repositories, source *entities.InvestmentEntry, now time.Time) (*entities.InvestmentEntry, error) {
	edge, err := tx.Referrals.GetByReferredForUpdate(ctx, source.OwnerID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load referral edge: %w", err)
	}
	if !edge.IsActive() {
		return nil, nil
	}

	referrer, err := tx.Accounts.GetForUpdate(ctx, edge.ReferrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock referrer: %w", err)
	}

	income := referral.Income(s.policy, referrer.DirectActiveReferralCount, source.Amount)
	if !income.IsPositive() {
		return nil, nil
	}

	trigger := entities.TriggerReferral
	sourceID := source.ID
	credit := &entities.InvestmentEntry{
		ID:                 uuid.New(),
		OwnerID:            referrer.ID,
		Amount:             income,
		Origin:             entities.InvestmentOriginReferralCredit,
		Status:             entities.InvestmentStatusConfirmed,
		ExternalRef:        entities.ReferralCreditRef(source.ID),
		ConfirmedAt:        &now,
		SourceInvestmentID: &sourceID,
		SettledBy:          &trigger,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	credit.ApplyLockIn(now, now)

	inserted, err := tx.Investments.CreateIfAbsent(ctx, credit)
	if err != nil {
		return nil, fmt.Errorf("failed to record referral credit: %w", err)
	}
	if !inserted {
		existing, err := tx.Investments.GetByExternalRef(ctx, credit.ExternalRef)
		if err != nil {
			return nil, fmt.Errorf("failed to load referral credit: %w", err)
		}
		if existing.Origin != entities.InvestmentOriginReferralCredit ||
			existing.SourceInvestmentID == nil || *existing.SourceInvestmentID != source.ID {
			return nil, domainerrors.ConflictError("referral credit", "reference "+credit.ExternalRef+" is held by another entry")
		}
		return nil, nil
	}

	referrer.CreditPrincipal(income)
	referrer.UpdatedAt = now
	if err := tx.Accounts.Update(ctx, referrer); err != nil {
		return nil, fmt.Errorf("failed to credit referrer: %w", err)
	}

	edge.CumulativeIncome = edge.CumulativeIncome.Add(income)
	edge.UpdatedAt = now
	if err := tx.Referrals.Update(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to update referral income: %w", err)
	}

	// income can lift the referrer over the activation threshold of their own edge
	if _, err := referral.ActivateIfEligible(ctx, tx, s.policy, referrer, now); err != nil {
		return nil, err
	}

	return credit, nil
}

func (s *Service) newEntry(ownerID uuid.UUID, amount decimal.Decimal, externalRef string, lockInDays int, now time.Time) *entities.InvestmentEntry {
	return &entities.InvestmentEntry{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Amount:      amount,
		Origin:      entities.InvestmentOriginDirect,
		Status:      entities.InvestmentStatusPending,
		ExternalRef: externalRef,
		LockInDays:  lockInDays,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// settle runs fn in a transaction and records the outcome
func (s *Service) settle(ctx context.Context, trigger string, fn func(ctx context.Context, tx *repositories.Repositories) (*Result, error)) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "settlement.Settle", attribute.String("settlement.trigger", trigger))
	defer span.End()

	var result *Result
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		r, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, domainerrors.ErrAlreadyRejected) {
			outcome = OutcomeRejected
		}
		metrics.RecordSettlement(trigger, outcome)
		if !domainerrors.IsNotFound(err) && !domainerrors.IsConflict(err) && !domainerrors.IsInvalidInput(err) {
			tracing.RecordError(span, err)
			s.logger.Error("Settlement failed", "trigger", trigger, "error", err)
		}
		return nil, err
	}

	if result.AlreadyConfirmed {
		metrics.RecordSettlement(trigger, OutcomeAlreadyConfirmed)
		s.logger.Debug("Investment already confirmed",
			"investment_id", result.Entry.ID.String(),
			"trigger", trigger)
		return result, nil
	}

	metrics.RecordSettlement(trigger, OutcomeConfirmed)
	amount, _ := result.Entry.Amount.Float64()
	metrics.RecordSettledVolume(string(result.Entry.Origin), amount)

	fields := []interface{}{
		"investment_id", result.Entry.ID.String(),
		"account_id", result.Entry.OwnerID.String(),
		"amount", result.Entry.Amount.String(),
		"trigger", trigger,
		"referral_activated", result.ReferralActivated,
	}
	if result.ReferralCredit != nil {
		credit, _ := result.ReferralCredit.Amount.Float64()
		metrics.RecordSettledVolume(string(result.ReferralCredit.Origin), credit)
		fields = append(fields,
			"referral_credit_id", result.ReferralCredit.ID.String(),
			"referral_income", result.ReferralCredit.Amount.String())
	}
	s.logger.Info("Investment settled", fields...)

	return result, nil
}
