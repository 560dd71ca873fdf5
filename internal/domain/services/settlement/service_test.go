package settlement

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
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/referral"
	"github.com/yieldvault/yield_service/internal/infrastructure/memstore"
	"github.com/yieldvault/yield_service/pkg/logger"
)

var now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memstore.Store
	svc   *Service
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	svc := NewService(store, entities.DefaultLedgerPolicy(), logger.NewNop())
	svc.SetClock(func() time.Time { return now })
	return &fixture{store: store, svc: svc, ctx: context.Background()}
}

func (f *fixture) account(t *testing.T, code string) *entities.Account {
	t.Helper()
	a := entities.NewAccount(uuid.New(), code, now)
	require.NoError(t, f.store.Repos().Accounts.Create(f.ctx, a))
	return a
}

func (f *fixture) refer(t *testing.T, referrerCode string, referredID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.store.WithTx(f.ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		_, err := referral.Attach(ctx, tx, referrerCode, referredID, now)
		return err
	}))
}

func (f *fixture) pending(t *testing.T, owner uuid.UUID, amount int64, ref string) *entities.InvestmentEntry {
	t.Helper()
	e := &entities.InvestmentEntry{
		ID:          uuid.New(),
		OwnerID:     owner,
		Amount:      decimal.NewFromInt(amount),
		Origin:      entities.InvestmentOriginDirect,
		Status:      entities.InvestmentStatusPending,
		ExternalRef: ref,
		LockInDays:  90,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.store.Repos().Investments.Create(f.ctx, e))
	return e
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *entities.Account {
	t.Helper()
	a, err := f.store.Repos().Accounts.GetByID(f.ctx, id)
	require.NoError(t, err)
	return a
}

func TestConfirmCreditsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, "OWNER001")
	entry := f.pending(t, owner.ID, 1000, "tx-hash-0001")

	result, err := f.svc.Confirm(f.ctx, entry.ID, entities.TriggerAdmin)
	require.NoError(t, err)
	assert.False(t, result.AlreadyConfirmed)
	assert.Equal(t, entities.InvestmentStatusConfirmed, result.Entry.Status)
	require.NotNil(t, result.Entry.LockInEndsAt)
	assert.Equal(t, now.Add(90*24*time.Hour), *result.Entry.LockInEndsAt)
	assert.False(t, result.Entry.Withdrawable)
	require.NotNil(t, result.Entry.SettledBy)
	assert.Equal(t, entities.TriggerAdmin, *result.Entry.SettledBy)

	again, err := f.svc.Confirm(f.ctx, entry.ID, entities.TriggerChainPoller)
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)

	got := f.reload(t, owner.ID)
	assert.True(t, got.Principal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.AvailablePrincipal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.RewardPoints.Equal(decimal.NewFromInt(1000)))
}

func TestConfirmErrors(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, "OWNER001")

	_, err := f.svc.Confirm(f.ctx, uuid.New(), entities.TriggerAdmin)
	assert.True(t, domainerrors.IsNotFound(err))

	entry := f.pending(t, owner.ID, 50, "tx-hash-0002")
	entry.Status = entities.InvestmentStatusRejected
	require.NoError(t, f.store.Repos().Investments.Update(f.ctx, entry))

	_, err = f.svc.Confirm(f.ctx, entry.ID, entities.TriggerAdmin)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyRejected)
	assert.True(t, domainerrors.IsConflict(err))
	assert.True(t, f.reload(t, owner.ID).Principal.IsZero())

	_, err = f.svc.Dispatch(f.ctx, Event{Trigger: entities.TriggerAdmin})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestConfirmActivatesReferralAndPaysIncome(t *testing.T) {
	f := newFixture(t)
	top := f.account(t, "TOP00001")
	referrer := f.account(t, "REF00001")
	referred := f.account(t, "USR00001")
	f.refer(t, "TOP00001", referrer.ID)
	f.refer(t, "REF00001", referred.ID)

	first := f.pending(t, referred.ID, 100, "tx-hash-0003")
	result, err := f.svc.Confirm(f.ctx, first.ID, entities.TriggerChainVerifier)
	require.NoError(t, err)
	assert.True(t, result.ReferralActivated)
	require.NotNil(t, result.ReferralCredit)
	assert.True(t, result.ReferralCredit.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, entities.ReferralCreditRef(first.ID), result.ReferralCredit.ExternalRef)
	assert.Equal(t, entities.InvestmentOriginReferralCredit, result.ReferralCredit.Origin)
	assert.True(t, result.ReferralCredit.Withdrawable)

	ref := f.reload(t, referrer.ID)
	assert.Equal(t, 1, ref.DirectActiveReferralCount)
	assert.True(t, ref.Principal.Equal(decimal.NewFromInt(5)))
	assert.True(t, ref.RewardPoints.Equal(decimal.NewFromInt(5)))

	second := f.pending(t, referred.ID, 200, "tx-hash-0004")
	result, err = f.svc.Dispatch(f.ctx, Event{Trigger: entities.TriggerAdmin, ExternalRef: "tx-hash-0004"})
	require.NoError(t, err)
	assert.False(t, result.ReferralActivated)
	require.NotNil(t, result.ReferralCredit)
	assert.Equal(t, second.ID, *result.ReferralCredit.SourceInvestmentID)

	_, err = f.svc.Confirm(f.ctx, second.ID, entities.TriggerAdmin)
	require.NoError(t, err)

	ref = f.reload(t, referrer.ID)
	assert.Equal(t, 1, ref.DirectActiveReferralCount)
	assert.True(t, ref.Principal.Equal(decimal.NewFromInt(15)))

	edge, err := f.store.Repos().Referrals.GetByReferred(f.ctx, referred.ID)
	require.NoError(t, err)
	assert.True(t, edge.CumulativeIncome.Equal(decimal.NewFromInt(15)))

	// income activates the referrer's own edge but never pays further up
	assert.True(t, f.reload(t, top.ID).Principal.IsZero())
	assert.Equal(t, 1, f.reload(t, top.ID).DirectActiveReferralCount)
}

func TestPendingEdgeEarnsNothing(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "REF00001")
	referred := f.account(t, "USR00001")
	f.refer(t, "REF00001", referred.ID)

	policy := entities.DefaultLedgerPolicy()
	policy.ActivationPrincipal = decimal.NewFromInt(1000)
	f.svc.policy = policy

	entry := f.pending(t, referred.ID, 100, "tx-hash-0005")
	result, err := f.svc.Confirm(f.ctx, entry.ID, entities.TriggerAdmin)
	require.NoError(t, err)
	assert.False(t, result.ReferralActivated)
	assert.Nil(t, result.ReferralCredit)
	assert.True(t, f.reload(t, referrer.ID).Principal.IsZero())
}

func TestSettlePayment(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, "OWNER001")

	intent := &entities.PaymentIntent{
		ID:        uuid.New(),
		OwnerID:   owner.ID,
		Amount:    decimal.NewFromInt(250),
		OrderRef:  "ord_0001",
		Provider:  "gateway",
		Status:    entities.PaymentIntentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.Repos().PaymentIntents.Create(f.ctx, intent))

	result, err := f.svc.SettlePayment(f.ctx, "ord_0001", entities.TriggerGatewayWebhook)
	require.NoError(t, err)
	assert.False(t, result.AlreadyConfirmed)
	assert.Equal(t, "ord_0001", result.Entry.ExternalRef)

	again, err := f.svc.Dispatch(f.ctx, Event{Trigger: entities.TriggerGatewayPoll, OrderRef: "ord_0001"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)
	assert.Equal(t, result.Entry.ID, again.Entry.ID)

	stored, err := f.store.Repos().PaymentIntents.GetByOrderRef(f.ctx, "ord_0001")
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentIntentStatusCompleted, stored.Status)
	require.NotNil(t, stored.LinkedInvestmentID)
	assert.Equal(t, result.Entry.ID, *stored.LinkedInvestmentID)

	assert.True(t, f.reload(t, owner.ID).Principal.Equal(decimal.NewFromInt(250)))

	failed := *intent
	failed.ID = uuid.New()
	failed.OrderRef = "ord_0002"
	failed.Status = entities.PaymentIntentStatusFailed
	require.NoError(t, f.store.Repos().PaymentIntents.Create(f.ctx, &failed))

	_, err = f.svc.SettlePayment(f.ctx, "ord_0002", entities.TriggerGatewayRecon)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
}

func TestSettlePaymentChecksExistingEntry(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, "OWNER001")

	newIntent := func(orderRef string) {
		require.NoError(t, f.store.Repos().PaymentIntents.Create(f.ctx, &entities.PaymentIntent{
			ID:        uuid.New(),
			OwnerID:   owner.ID,
			Amount:    decimal.NewFromInt(10),
			OrderRef:  orderRef,
			Provider:  "gateway",
			Status:    entities.PaymentIntentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	newIntent("ord_0003")
	f.pending(t, owner.ID, 1000000, "ord_0003")

	_, err := f.svc.SettlePayment(f.ctx, "ord_0003", entities.TriggerGatewayWebhook)
	require.Error(t, err)
	assert.True(t, domainerrors.IsConflict(err), "unexpected error %v", err)
	assert.True(t, f.reload(t, owner.ID).Principal.IsZero())

	stored, err := f.store.Repos().PaymentIntents.GetByOrderRef(f.ctx, "ord_0003")
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentIntentStatusPending, stored.Status)

	// an entry carrying the intent's own amount is settled
	newIntent("ord_0004")
	entry := f.pending(t, owner.ID, 10, "ord_0004")

	result, err := f.svc.SettlePayment(f.ctx, "ord_0004", entities.TriggerGatewayWebhook)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, result.Entry.ID)
	assert.True(t, f.reload(t, owner.ID).Principal.Equal(decimal.NewFromInt(10)))
}

func TestReferralCreditRefHeldByOtherEntry(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "REF00001")
	referred := f.account(t, "USR00001")
	f.refer(t, "REF00001", referred.ID)

	first := f.pending(t, referred.ID, 100, "tx-hash-0010")
	_, err := f.svc.Confirm(f.ctx, first.ID, entities.TriggerAdmin)
	require.NoError(t, err)
	require.True(t, f.reload(t, referrer.ID).Principal.Equal(decimal.NewFromInt(5)))

	second := f.pending(t, referred.ID, 1000, "tx-hash-0011")
	f.pending(t, referred.ID, 50, entities.ReferralCreditRef(second.ID))

	_, err = f.svc.Confirm(f.ctx, second.ID, entities.TriggerAdmin)
	require.Error(t, err)
	assert.True(t, domainerrors.IsConflict(err), "unexpected error %v", err)

	// nothing from the failed confirmation is kept
	assert.True(t, f.reload(t, referrer.ID).Principal.Equal(decimal.NewFromInt(5)))
	assert.True(t, f.reload(t, referred.ID).Principal.Equal(decimal.NewFromInt(100)))
	stored, err := f.store.Repos().Investments.GetByID(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.InvestmentStatusPending, stored.Status)
}

func TestGrant(t *testing.T) {
	f := newFixture(t)
	owner := f.account(t, "OWNER001")
	zero := 0

	result, err := f.svc.Grant(f.ctx, &entities.GrantInvestmentRequest{
		OwnerID:    owner.ID,
		Amount:     decimal.NewFromInt(40),
		LockInDays: &zero,
		Note:       "promo",
	}, "admin-1")
	require.NoError(t, err)
	assert.True(t, result.Entry.Withdrawable)
	assert.Nil(t, result.Entry.LockInEndsAt)
	assert.True(t, f.reload(t, owner.ID).Principal.Equal(decimal.NewFromInt(40)))

	_, err = f.svc.Grant(f.ctx, &entities.GrantInvestmentRequest{OwnerID: owner.ID, Amount: decimal.NewFromInt(5)}, "admin-1")
	assert.ErrorIs(t, err, domainerrors.ErrMinimumAmountNotMet)

	_, err = f.svc.Grant(f.ctx, &entities.GrantInvestmentRequest{OwnerID: uuid.New(), Amount: decimal.NewFromInt(50)}, "admin-1")
	assert.True(t, domainerrors.IsNotFound(err))
}
