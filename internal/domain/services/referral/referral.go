// Package referral maintains the referral graph: attaching a referred user to
// a referrer, activating the edge once the referred user has invested, and
// pricing the income a referrer earns.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
)

const incomePlaces = 8

// IncomeRate returns the share of a referred user's investment paid to a
// referrer with the given number of active referrals.
func IncomeRate(policy entities.LedgerPolicy, activeReferrals int) decimal.Decimal {
	rate := decimal.Zero
	for _, tier := range policy.SortedTiers() {
		if activeReferrals >= tier.MinActive {
			rate = tier.Rate
		}
	}
	return rate
}

// Income prices the referral income due on an investment amount
func Income(policy entities.LedgerPolicy, activeReferrals int, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(IncomeRate(policy, activeReferrals)).Round(incomePlaces)
}

// Attach links referredID to the owner of referralCode with a pending edge
// and bumps the referrer's direct referral count. It must run inside tx.
func Attach(ctx context.Context, tx *repositories.Repositories, referralCode string, referredID uuid.UUID, now time.Time) (*entities.ReferralEdge, error) {
	referrer, err := tx.Accounts.GetByReferralCode(ctx, referralCode)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.ErrInvalidReferralCode
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	if referrer.ID == referredID {
		return nil, domainerrors.ErrSelfReferral
	}

	edge := &entities.ReferralEdge{
		ID:               uuid.New(),
		ReferrerID:       referrer.ID,
		ReferredID:       referredID,
		Status:           entities.ReferralStatusPending,
		CumulativeIncome: decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Referrals.Create(ctx, edge); err != nil {
		return nil, err
	}

	referrer, err = tx.Accounts.GetForUpdate(ctx, referrer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock referrer: %w", err)
	}
	referrer.DirectReferralCount++
	referrer.UpdatedAt = now
	if err := tx.Accounts.Update(ctx, referrer); err != nil {
		return nil, fmt.Errorf("failed to update referrer: %w", err)
	}

	return edge, nil
}

// ActivateIfEligible moves the referred account's pending edge to active the
// first time its principal reaches the activation threshold, incrementing the
// referrer's active referral count exactly once. It must run inside tx and
// reports whether the edge was activated by this call.
func ActivateIfEligible(ctx context.Context, tx *repositories.Repositories, policy entities.LedgerPolicy, referred *entities.Account, now time.Time) (bool, error) {
	if referred.Principal.LessThan(policy.ActivationPrincipal) {
		return false, nil
	}

	edge, err := tx.Referrals.GetByReferredForUpdate(ctx, referred.ID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load referral edge: %w", err)
	}
	if edge.IsActive() {
		return false, nil
	}

	edge.Status = entities.ReferralStatusActive
	edge.ActivatedAt = &now
	edge.UpdatedAt = now
	if err := tx.Referrals.Update(ctx, edge); err != nil {
		return false, fmt.Errorf("failed to activate referral: %w", err)
	}

	referrer, err := tx.Accounts.GetForUpdate(ctx, edge.ReferrerID)
	if err != nil {
		return false, fmt.Errorf("failed to lock referrer: %w", err)
	}
	referrer.DirectActiveReferralCount++
	referrer.UpdatedAt = now
	if err := tx.Accounts.Update(ctx, referrer); err != nil {
		return false, fmt.Errorf("failed to update referrer: %w", err)
	}

	return true, nil
}

// Summary is a referrer's view of their downline
type Summary struct {
	Pending int             `json:"pending"`
	Active  int             `json:"active"`
	Income  decimal.Decimal `json:"income"`
}

// Summarize totals a referrer's edges
func Summarize(ctx context.Context, repos *repositories.Repositories, referrerID uuid.UUID) (*Summary, error) {
	edges, err := repos.Referrals.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	s := &Summary{Income: decimal.Zero}
	for _, e := range edges {
		if e.IsActive() {
			s.Active++
		} else {
			s.Pending++
		}
		s.Income = s.Income.Add(e.CumulativeIncome)
	}
	return s, nil
}
