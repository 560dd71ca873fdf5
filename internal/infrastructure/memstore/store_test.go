package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
)

func newEntry(owner uuid.UUID, ref string, now time.Time) *entities.InvestmentEntry {
	return &entities.InvestmentEntry{
		ID:          uuid.New(),
		OwnerID:     owner,
		Amount:      decimal.NewFromInt(100),
		Origin:      entities.InvestmentOriginDirect,
		Status:      entities.InvestmentStatusPending,
		ExternalRef: ref,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now().UTC()
	account := entities.NewAccount(uuid.New(), "CODE1234", now)
	require.NoError(t, store.Repos().Accounts.Create(ctx, account))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		a, err := tx.Accounts.GetForUpdate(ctx, account.ID)
		require.NoError(t, err)
		a.CreditPrincipal(decimal.NewFromInt(50))
		require.NoError(t, tx.Accounts.Update(ctx, a))
		require.NoError(t, tx.Investments.Create(ctx, newEntry(account.ID, "tx-rollback", now)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Repos().Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Principal.IsZero())

	_, err = store.Repos().Investments.GetByExternalRef(ctx, "tx-rollback")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestInvestmentExternalRefUnique(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.Repos().Investments.Create(ctx, newEntry(owner, "dup-ref", now)))

	err := store.Repos().Investments.Create(ctx, newEntry(owner, "dup-ref", now))
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateReference)

	inserted, err := store.Repos().Investments.CreateIfAbsent(ctx, newEntry(owner, "dup-ref", now))
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestAccrualMarkerUniquePerDay(t *testing.T) {
	ctx := context.Background()
	store := New()
	accountID := uuid.New()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	marker := &entities.AccrualMarker{ID: uuid.New(), AccountID: accountID, AccrualDate: day}
	inserted, err := store.Repos().AccrualMarkers.TryInsert(ctx, marker)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := &entities.AccrualMarker{ID: uuid.New(), AccountID: accountID, AccrualDate: day.Add(5 * time.Hour)}
	inserted, err = store.Repos().AccrualMarkers.TryInsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestUnlockMatured(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner := uuid.New()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	matured := newEntry(owner, "matured", now)
	matured.Status = entities.InvestmentStatusConfirmed
	past := now.Add(-time.Hour)
	matured.LockInEndsAt = &past

	locked := newEntry(owner, "locked", now)
	locked.Status = entities.InvestmentStatusConfirmed
	future := now.Add(time.Hour)
	locked.LockInEndsAt = &future

	require.NoError(t, store.Repos().Investments.Create(ctx, matured))
	require.NoError(t, store.Repos().Investments.Create(ctx, locked))

	n, err := store.Repos().Investments.UnlockMatured(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sum, err := store.Repos().Investments.SumWithdrawablePrincipal(ctx, owner)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(100)))
}

func TestListAccrualCandidatesPaging(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		a := entities.NewAccount(uuid.New(), uuid.NewString()[:8], now)
		a.CreditPrincipal(decimal.NewFromInt(int64(5 + i*5)))
		require.NoError(t, store.Repos().Accounts.Create(ctx, a))
	}

	var seen []uuid.UUID
	after := uuid.Nil
	for {
		page, err := store.Repos().Accounts.ListAccrualCandidates(ctx, decimal.NewFromInt(10), after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		seen = append(seen, page...)
		after = page[len(page)-1]
	}
	assert.Len(t, seen, 4)
}
