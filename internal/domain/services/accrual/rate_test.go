package accrual

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

func account(principal string, activeReferrals int, lastActivity time.Time) *entities.Account {
	a := entities.NewAccount(uuid.New(), "CODE", lastActivity)
	a.Principal = decimal.RequireFromString(principal)
	a.AvailablePrincipal = a.Principal
	a.DirectActiveReferralCount = activeReferrals
	return a
}

func TestCompute(t *testing.T) {
	policy := entities.DefaultLedgerPolicy()
	now := time.Date(2024, 5, 10, 0, 5, 0, 0, time.UTC)

	tests := []struct {
		name            string
		principal       string
		activeReferrals int
		idleFor         time.Duration
		wantRate        string
		wantInterest    string
		wantDormant     bool
	}{
		{
			name:         "base rate",
			principal:    "1000",
			wantRate:     "0.005",
			wantInterest: "5",
		},
		{
			name:            "premium plan overrides referral bonus",
			principal:       "20000",
			activeReferrals: 5,
			wantRate:        "0.01",
			wantInterest:    "200",
		},
		{
			name:            "referral bonus in whole blocks of ten",
			principal:       "9000",
			activeReferrals: 23,
			wantRate:        "0.006",
			wantInterest:    "54",
		},
		{
			name:            "rate capped at two percent",
			principal:       "5000",
			activeReferrals: 1000,
			wantRate:        "0.02",
			wantInterest:    "100",
		},
		{
			name:            "nine referrals earn no bonus",
			principal:       "100",
			activeReferrals: 9,
			wantRate:        "0.005",
			wantInterest:    "0.5",
		},
		{
			name:         "dormant at exactly sixty days",
			principal:    "1000",
			idleFor:      60 * 24 * time.Hour,
			wantRate:     "0.005",
			wantInterest: "0",
			wantDormant:  true,
		},
		{
			name:         "active one second before dormancy",
			principal:    "1000",
			idleFor:      60*24*time.Hour - time.Second,
			wantRate:     "0.005",
			wantInterest: "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := account(tt.principal, tt.activeReferrals, now.Add(-tt.idleFor))
			q := Compute(policy, a, now)

			assert.True(t, q.Rate.Equal(decimal.RequireFromString(tt.wantRate)), "rate %s", q.Rate)
			assert.True(t, q.Interest.Equal(decimal.RequireFromString(tt.wantInterest)), "interest %s", q.Interest)
			assert.Equal(t, tt.wantDormant, q.Dormant)
		})
	}
}

func TestComputeJudgesDormancyAtAccrualDate(t *testing.T) {
	policy := entities.DefaultLedgerPolicy()
	lastActive := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := account("1000", 0, lastActive)

	// a back-dated run for a day inside the window still pays
	q := Compute(policy, a, lastActive.AddDate(0, 0, 30))
	assert.False(t, q.Dormant)
	assert.True(t, q.Interest.Equal(decimal.NewFromInt(5)))

	q = Compute(policy, a, lastActive.AddDate(0, 0, 61))
	assert.True(t, q.Dormant)
	assert.True(t, q.Interest.IsZero())
}

func TestDailyRateBounds(t *testing.T) {
	policy := entities.DefaultLedgerPolicy()
	now := time.Now()

	for active := 0; active <= 500; active += 7 {
		rate := DailyRate(policy, account("9999", active, now))
		assert.True(t, rate.GreaterThanOrEqual(policy.BaseDailyRate))
		assert.True(t, rate.LessThanOrEqual(policy.MaxDailyRate))
	}
}
