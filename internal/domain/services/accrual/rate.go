package accrual

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

// interestPlaces is the precision credited balances are rounded to
const interestPlaces = 8

// Quote is the interest decision for one account on one day
type Quote struct {
	Rate     decimal.Decimal
	Interest decimal.Decimal
	Premium  bool
	Dormant  bool
}

// DailyRate returns the rate an account earns per day. Accounts at or above
// the premium threshold get the premium rate regardless of referrals.
func DailyRate(policy entities.LedgerPolicy, account *entities.Account) decimal.Decimal {
	if account.Principal.GreaterThanOrEqual(policy.PremiumThreshold) {
		return policy.PremiumDailyRate
	}

	blocks := int64(account.DirectActiveReferralCount / policy.BonusReferralBlock)
	rate := policy.BaseDailyRate.Add(policy.BonusRateStep.Mul(decimal.NewFromInt(blocks)))
	if rate.GreaterThan(policy.MaxDailyRate) {
		return policy.MaxDailyRate
	}
	return rate
}

// Compute quotes the interest an account earns at the given instant.
// A dormant account earns nothing. Dormancy is judged at now, the accrual
// date of the run, not the wall clock, so back-dated runs see the account
// as it was on that day.
func Compute(policy entities.LedgerPolicy, account *entities.Account, now time.Time) Quote {
	rate := DailyRate(policy, account)
	q := Quote{
		Rate:     rate,
		Interest: decimal.Zero,
		Premium:  account.Principal.GreaterThanOrEqual(policy.PremiumThreshold),
		Dormant:  account.IsDormant(now, policy.DormancyWindow),
	}
	if q.Dormant {
		return q
	}
	q.Interest = account.Principal.Mul(rate).Round(interestPlaces)
	return q
}
