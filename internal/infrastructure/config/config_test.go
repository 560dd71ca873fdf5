package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

func TestLedgerPolicyDefaults(t *testing.T) {
	policy, err := LedgerConfig{DefaultLockInDays: 90}.Policy()
	require.NoError(t, err)

	defaults := entities.DefaultLedgerPolicy()
	assert.True(t, policy.BaseDailyRate.Equal(defaults.BaseDailyRate))
	assert.Equal(t, 90, policy.DefaultLockInDays)
	assert.Equal(t, 60*24*time.Hour, policy.DormancyWindow)
	assert.Len(t, policy.ReferralTiers, 3)
}

func TestLedgerPolicyOverrides(t *testing.T) {
	policy, err := LedgerConfig{
		BaseDailyRate:     "0.004",
		DormancyDays:      30,
		DefaultLockInDays: 0,
		ReferralTiers: []ReferralTierConfig{
			{MinActive: 0, Rate: "0.03"},
			{MinActive: 5, Rate: "0.06"},
		},
	}.Policy()
	require.NoError(t, err)

	assert.True(t, policy.BaseDailyRate.Equal(decimal.RequireFromString("0.004")))
	assert.Equal(t, 30*24*time.Hour, policy.DormancyWindow)
	assert.Equal(t, 0, policy.DefaultLockInDays)
	require.Len(t, policy.ReferralTiers, 2)
	assert.Equal(t, 5, policy.ReferralTiers[1].MinActive)
}

func TestLedgerPolicyRejectsBadValues(t *testing.T) {
	_, err := LedgerConfig{BaseDailyRate: "abc"}.Policy()
	assert.Error(t, err)

	_, err = LedgerConfig{BaseDailyRate: "0.05", MaxDailyRate: "0.01"}.Policy()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		JWT:         JWTConfig{Secret: "s"},
		Database:    DatabaseConfig{Driver: "memory"},
	}
	assert.Error(t, validate(cfg), "memory store must be refused in production")

	cfg.Database = DatabaseConfig{Driver: "postgres", URL: "postgres://localhost/db"}
	assert.NoError(t, validate(cfg))

	cfg.Gateway.SkipSignatureVerify = true
	assert.Error(t, validate(cfg))

	cfg.JWT.Secret = ""
	assert.Error(t, validate(cfg))
}
