package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus represents the lifecycle state of an investor account
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusFrozen   AccountStatus = "frozen"
	AccountStatusInactive AccountStatus = "inactive"
)

// IsValid checks if the status is a known account status
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusFrozen, AccountStatusInactive:
		return true
	}
	return false
}

// Account holds the per-user balances maintained by the ledger.
// The ID is the identity provider's user id.
type Account struct {
	ID                        uuid.UUID       `json:"id" db:"id"`
	ReferralCode              string          `json:"referralCode" db:"referral_code"`
	Principal                 decimal.Decimal `json:"principal" db:"principal"`
	AvailablePrincipal        decimal.Decimal `json:"availablePrincipal" db:"available_principal"`
	InterestAccrued           decimal.Decimal `json:"interestAccrued" db:"interest_accrued"`
	MonthlyInterestAccrued    decimal.Decimal `json:"monthlyInterestAccrued" db:"monthly_interest_accrued"`
	MonthlyInterestPeriod     string          `json:"monthlyInterestPeriod" db:"monthly_interest_period"`
	DirectReferralCount       int             `json:"directReferralCount" db:"direct_referral_count"`
	DirectActiveReferralCount int             `json:"directActiveReferralCount" db:"direct_active_referral_count"`
	RewardPoints              decimal.Decimal `json:"rewardPoints" db:"reward_points"`
	LastActivityAt            time.Time       `json:"lastActivityAt" db:"last_activity_at"`
	Status                    AccountStatus   `json:"status" db:"status"`
	CreatedAt                 time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt                 time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewAccount returns an active account with zero balances
func NewAccount(id uuid.UUID, referralCode string, now time.Time) *Account {
	return &Account{
		ID:                     id,
		ReferralCode:           referralCode,
		Principal:              decimal.Zero,
		AvailablePrincipal:     decimal.Zero,
		InterestAccrued:        decimal.Zero,
		MonthlyInterestAccrued: decimal.Zero,
		MonthlyInterestPeriod:  MonthPeriod(now),
		RewardPoints:           decimal.Zero,
		LastActivityAt:         now,
		Status:                 AccountStatusActive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// CreditPrincipal adds a confirmed investment to the principal balances
// and reward points.
func (a *Account) CreditPrincipal(amount decimal.Decimal) {
	a.Principal = a.Principal.Add(amount)
	a.AvailablePrincipal = a.AvailablePrincipal.Add(amount)
	a.RewardPoints = a.RewardPoints.Add(amount)
}

// AdjustPrincipal applies a signed correction to principal, available principal
// and reward points. Balances floor at zero and available principal never
// exceeds principal.
func (a *Account) AdjustPrincipal(delta decimal.Decimal) {
	a.Principal = floorZero(a.Principal.Add(delta))
	a.AvailablePrincipal = floorZero(a.AvailablePrincipal.Add(delta))
	a.RewardPoints = floorZero(a.RewardPoints.Add(delta))
	if a.AvailablePrincipal.GreaterThan(a.Principal) {
		a.AvailablePrincipal = a.Principal
	}
}

// RollMonth resets the monthly interest counter when period is later than
// the one it currently tracks. YYYY-MM strings order chronologically.
func (a *Account) RollMonth(period string) {
	if period > a.MonthlyInterestPeriod {
		a.MonthlyInterestPeriod = period
		a.MonthlyInterestAccrued = decimal.Zero
	}
}

// CreditInterest adds one day of accrued interest earned in period. Interest
// for a month older than the tracked one only reaches the lifetime balance.
func (a *Account) CreditInterest(amount decimal.Decimal, period string) {
	a.RollMonth(period)
	a.InterestAccrued = a.InterestAccrued.Add(amount)
	if period == a.MonthlyInterestPeriod {
		a.MonthlyInterestAccrued = a.MonthlyInterestAccrued.Add(amount)
	}
}

// MonthlyInterestFor returns the monthly counter if it belongs to period
func (a *Account) MonthlyInterestFor(period string) decimal.Decimal {
	if a.MonthlyInterestPeriod != period {
		return decimal.Zero
	}
	return a.MonthlyInterestAccrued
}

// IsDormant reports whether the account has been idle for at least the window
func (a *Account) IsDormant(now time.Time, window time.Duration) bool {
	return now.Sub(a.LastActivityAt) >= window
}

// Validate checks the balance invariants
func (a *Account) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"principal":                a.Principal,
		"available_principal":      a.AvailablePrincipal,
		"interest_accrued":         a.InterestAccrued,
		"monthly_interest_accrued": a.MonthlyInterestAccrued,
		"reward_points":            a.RewardPoints,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if a.AvailablePrincipal.GreaterThan(a.Principal) {
		return fmt.Errorf("available principal %s exceeds principal %s", a.AvailablePrincipal, a.Principal)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid account status: %s", a.Status)
	}
	return nil
}

// MonthPeriod returns the calendar month (UTC) a timestamp belongs to, as YYYY-MM
func MonthPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns the first instant of the UTC calendar month containing t
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AccrualDate truncates a timestamp to its UTC calendar day
func AccrualDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// AccountDashboard is the read model returned to account owners
type AccountDashboard struct {
	Account          *Account               `json:"account"`
	DailyRate        decimal.Decimal        `json:"dailyRate"`
	ProjectedDaily   decimal.Decimal        `json:"projectedDaily"`
	Dormant          bool                   `json:"dormant"`
	ReferralIncome   decimal.Decimal        `json:"referralIncome"`
	PendingReferrals int                    `json:"pendingReferrals"`
	ActiveReferrals  int                    `json:"activeReferrals"`
	Eligibility      *WithdrawalEligibility `json:"eligibility"`
}

// RegisterAccountRequest is the body of the account registration endpoint
type RegisterAccountRequest struct {
	ReferralCode string `json:"referralCode" validate:"omitempty,min=4,max=32"`
}
