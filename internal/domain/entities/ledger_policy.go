package entities

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ReferralTier maps a referrer's active referral count to an income rate
type ReferralTier struct {
	MinActive int             `json:"minActive"`
	Rate      decimal.Decimal `json:"rate"`
}

// LedgerPolicy holds the business constants of the ledger. Rates are
// fractions, so 0.005 is 0.5% per day.
type LedgerPolicy struct {
	BaseDailyRate        decimal.Decimal
	BonusRateStep        decimal.Decimal
	BonusReferralBlock   int
	MaxDailyRate         decimal.Decimal
	PremiumThreshold     decimal.Decimal
	PremiumDailyRate     decimal.Decimal
	MinAccrualPrincipal  decimal.Decimal
	DormancyWindow       time.Duration
	MinInvestment        decimal.Decimal
	ActivationPrincipal  decimal.Decimal
	DefaultLockInDays    int
	MinWithdrawal        decimal.Decimal
	WithdrawalMinBalance decimal.Decimal
	InterestWithdrawCap  decimal.Decimal
	ReferralTiers        []ReferralTier
}

// DefaultLedgerPolicy returns the production constants
func DefaultLedgerPolicy() LedgerPolicy {
	return LedgerPolicy{
		BaseDailyRate:        decimal.RequireFromString("0.005"),
		BonusRateStep:        decimal.RequireFromString("0.0005"),
		BonusReferralBlock:   10,
		MaxDailyRate:         decimal.RequireFromString("0.02"),
		PremiumThreshold:     decimal.NewFromInt(10000),
		PremiumDailyRate:     decimal.RequireFromString("0.01"),
		MinAccrualPrincipal:  decimal.NewFromInt(10),
		DormancyWindow:       60 * 24 * time.Hour,
		MinInvestment:        decimal.NewFromInt(10),
		ActivationPrincipal:  decimal.NewFromInt(10),
		DefaultLockInDays:    90,
		MinWithdrawal:        decimal.NewFromInt(20),
		WithdrawalMinBalance: decimal.NewFromInt(500),
		InterestWithdrawCap:  decimal.RequireFromString("0.30"),
		ReferralTiers: []ReferralTier{
			{MinActive: 0, Rate: decimal.RequireFromString("0.05")},
			{MinActive: 10, Rate: decimal.RequireFromString("0.07")},
			{MinActive: 25, Rate: decimal.RequireFromString("0.10")},
		},
	}
}

// Validate rejects policies that would break ledger invariants
func (p LedgerPolicy) Validate() error {
	if !p.BaseDailyRate.IsPositive() {
		return fmt.Errorf("base daily rate must be positive")
	}
	if p.MaxDailyRate.LessThan(p.BaseDailyRate) {
		return fmt.Errorf("max daily rate %s is below base rate %s", p.MaxDailyRate, p.BaseDailyRate)
	}
	if p.BonusReferralBlock <= 0 {
		return fmt.Errorf("bonus referral block must be positive")
	}
	if p.DormancyWindow <= 0 {
		return fmt.Errorf("dormancy window must be positive")
	}
	if p.DefaultLockInDays < 0 {
		return fmt.Errorf("default lock-in days cannot be negative")
	}
	if p.InterestWithdrawCap.IsNegative() || p.InterestWithdrawCap.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("interest withdraw cap must be between 0 and 1")
	}
	if len(p.ReferralTiers) == 0 {
		return fmt.Errorf("at least one referral tier is required")
	}
	return nil
}

// SortedTiers returns the referral tiers ordered by threshold
func (p LedgerPolicy) SortedTiers() []ReferralTier {
	tiers := make([]ReferralTier, len(p.ReferralTiers))
	copy(tiers, p.ReferralTiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinActive < tiers[j].MinActive
	})
	return tiers
}
