package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/services/withdrawal"
	"github.com/yieldvault/yield_service/internal/infrastructure/memstore"
	"github.com/yieldvault/yield_service/pkg/logger"
)

var now = time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *memstore.Store, *time.Time) {
	t.Helper()
	store := memstore.New()
	policy := entities.DefaultLedgerPolicy()
	current := now
	clock := func() time.Time { return current }

	withdrawals := withdrawal.NewService(store, policy, nil, logger.NewNop())
	withdrawals.SetClock(clock)
	svc := NewService(store, policy, withdrawals, logger.NewNop())
	svc.SetClock(clock)
	return svc, store, &current
}

func TestRegister(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	referrer, err := svc.Register(ctx, uuid.New(), &entities.RegisterAccountRequest{})
	require.NoError(t, err)
	assert.Len(t, referrer.ReferralCode, referralCodeLength)
	assert.Equal(t, entities.AccountStatusActive, referrer.Status)

	userID := uuid.New()
	user, err := svc.Register(ctx, userID, &entities.RegisterAccountRequest{ReferralCode: " " + referrer.ReferralCode + " "})
	require.NoError(t, err)
	assert.NotEqual(t, referrer.ReferralCode, user.ReferralCode)

	edge, err := store.Repos().Referrals.GetByReferred(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, edge.ReferrerID)
	assert.Equal(t, entities.ReferralStatusPending, edge.Status)

	got, err := svc.Get(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DirectReferralCount)

	_, err = svc.Register(ctx, userID, &entities.RegisterAccountRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrAccountExists)
}

func TestRegisterWithUnknownCodeRollsBack(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Register(ctx, userID, &entities.RegisterAccountRequest{ReferralCode: "NOSUCHCODE"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidReferralCode)

	_, err = svc.Get(ctx, userID)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestTouchActivityIsThrottled(t *testing.T) {
	svc, _, current := setup(t)
	ctx := context.Background()

	a, err := svc.Register(ctx, uuid.New(), &entities.RegisterAccountRequest{})
	require.NoError(t, err)

	*current = now.Add(30 * time.Minute)
	require.NoError(t, svc.TouchActivity(ctx, a.ID))
	got, _ := svc.Get(ctx, a.ID)
	assert.Equal(t, now, got.LastActivityAt)

	*current = now.Add(2 * time.Hour)
	require.NoError(t, svc.TouchActivity(ctx, a.ID))
	got, _ = svc.Get(ctx, a.ID)
	assert.Equal(t, now.Add(2*time.Hour), got.LastActivityAt)

	assert.True(t, domainerrors.IsNotFound(svc.TouchActivity(ctx, uuid.New())))
}

func TestFreezeAndUnfreeze(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	a, err := svc.Register(ctx, uuid.New(), &entities.RegisterAccountRequest{})
	require.NoError(t, err)

	frozen, err := svc.Freeze(ctx, a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, entities.AccountStatusFrozen, frozen.Status)

	active, err := svc.Unfreeze(ctx, a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, entities.AccountStatusActive, active.Status)

	_, err = svc.Freeze(ctx, uuid.New(), "admin-1")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestDashboard(t *testing.T) {
	svc, store, current := setup(t)
	ctx := context.Background()

	a, err := svc.Register(ctx, uuid.New(), &entities.RegisterAccountRequest{})
	require.NoError(t, err)

	stored, err := store.Repos().Accounts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	stored.Principal = decimal.NewFromInt(9000)
	stored.AvailablePrincipal = stored.Principal
	stored.DirectActiveReferralCount = 23
	require.NoError(t, store.Repos().Accounts.Update(ctx, stored))

	d, err := svc.Dashboard(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, d.DailyRate.Equal(decimal.RequireFromString("0.006")))
	assert.True(t, d.ProjectedDaily.Equal(decimal.NewFromInt(54)))
	assert.False(t, d.Dormant)
	require.NotNil(t, d.Eligibility)
	assert.True(t, d.Eligibility.MeetsPrincipalMinimum)

	*current = now.Add(61 * 24 * time.Hour)
	d, err = svc.Dashboard(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, d.Dormant)
	assert.True(t, d.ProjectedDaily.IsZero())
}
