package withdrawal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/infrastructure/memstore"
	"github.com/yieldvault/yield_service/pkg/logger"
)

var now = time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)

const destination = "TXYZ1234567890abcdefghijklmnopqr"

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	notifier *mockNotifier
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	notifier := &mockNotifier{}
	notifier.On("NotifyWithdrawalRequested", mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewService(store, entities.DefaultLedgerPolicy(), notifier, logger.NewNop())
	svc.SetClock(func() time.Time { return now })
	return &fixture{svc: svc, store: store, notifier: notifier, ctx: context.Background()}
}

// account seeds an account with the given balances and one unlocked direct
// investment worth unlocked.
func (f *fixture) account(t *testing.T, principal, interest, monthly, unlocked int64) *entities.Account {
	t.Helper()
	a := entities.NewAccount(uuid.New(), uuid.NewString()[:8], now)
	a.Principal = decimal.NewFromInt(principal)
	a.AvailablePrincipal = a.Principal
	a.InterestAccrued = decimal.NewFromInt(interest)
	a.MonthlyInterestAccrued = decimal.NewFromInt(monthly)
	a.MonthlyInterestPeriod = entities.MonthPeriod(now)
	require.NoError(t, f.store.Repos().Accounts.Create(f.ctx, a))

	if unlocked > 0 {
		confirmedAt := now.Add(-100 * 24 * time.Hour)
		ends := confirmedAt.Add(90 * 24 * time.Hour)
		require.NoError(t, f.store.Repos().Investments.Create(f.ctx, &entities.InvestmentEntry{
			ID:           uuid.New(),
			OwnerID:      a.ID,
			Amount:       decimal.NewFromInt(unlocked),
			Origin:       entities.InvestmentOriginDirect,
			Status:       entities.InvestmentStatusConfirmed,
			ExternalRef:  "unlocked-" + a.ID.String(),
			LockInDays:   90,
			LockInEndsAt: &ends,
			Withdrawable: true,
			ConfirmedAt:  &confirmedAt,
			CreatedAt:    confirmedAt,
		}))
	}
	return a
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *entities.Account {
	t.Helper()
	a, err := f.store.Repos().Accounts.GetByID(f.ctx, id)
	require.NoError(t, err)
	return a
}

func interest(amount int64) *entities.CreateWithdrawalRequest {
	return &entities.CreateWithdrawalRequest{Amount: decimal.NewFromInt(amount), Kind: entities.WithdrawalKindInterest, DestinationAddress: destination}
}

func principal(amount int64) *entities.CreateWithdrawalRequest {
	return &entities.CreateWithdrawalRequest{Amount: decimal.NewFromInt(amount), Kind: entities.WithdrawalKindPrincipal, DestinationAddress: destination}
}

func TestRequestInterestCap(t *testing.T) {
	f := newFixture(t)

	// cap = min(100, 0.30 * 60) = 18
	a := f.account(t, 1000, 100, 60, 0)
	_, err := f.svc.Request(f.ctx, a.ID, interest(25))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	rich := f.account(t, 1000, 100, 200, 0)
	w, err := f.svc.Request(f.ctx, rich.ID, interest(30))
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, w.Status)
	f.notifier.AssertCalled(t, "NotifyWithdrawalRequested", mock.Anything, w)

	_, err = f.svc.Request(f.ctx, rich.ID, interest(20))
	assert.ErrorIs(t, err, domainerrors.ErrMonthlyWithdrawalTaken)
}

func TestRequestInterestCapUsesCurrentMonthOnly(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 500, 400, 0)

	stored := f.reload(t, a.ID)
	stored.MonthlyInterestPeriod = "2024-05"
	require.NoError(t, f.store.Repos().Accounts.Update(f.ctx, stored))

	_, err := f.svc.Request(f.ctx, a.ID, interest(20))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	poor := f.account(t, 499, 100, 1000, 499)
	a := f.account(t, 1000, 100, 1000, 1000)

	tests := []struct {
		name  string
		owner uuid.UUID
		req   *entities.CreateWithdrawalRequest
		want  error
	}{
		{"below minimum amount", a.ID, interest(19), domainerrors.ErrMinimumAmountNotMet},
		{"principal under threshold", poor.ID, interest(20), domainerrors.ErrNotEligible},
		{"principal under threshold for principal kind", poor.ID, principal(20), domainerrors.ErrNotEligible},
		{"unknown kind", a.ID, &entities.CreateWithdrawalRequest{Amount: decimal.NewFromInt(50), Kind: "bonus", DestinationAddress: destination}, domainerrors.ErrInvalidInput},
		{"missing destination", a.ID, &entities.CreateWithdrawalRequest{Amount: decimal.NewFromInt(50), Kind: entities.WithdrawalKindInterest}, domainerrors.ErrInvalidInput},
		{"unknown account", uuid.New(), interest(20), domainerrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Request(f.ctx, tt.owner, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestPrincipalLimit(t *testing.T) {
	f := newFixture(t)
	// 1000 principal of which 600 is unlocked
	a := f.account(t, 1000, 0, 0, 600)

	_, err := f.svc.Request(f.ctx, a.ID, principal(601))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	_, err = f.svc.Request(f.ctx, a.ID, principal(400))
	require.NoError(t, err)

	// outstanding requests reduce what is left
	_, err = f.svc.Request(f.ctx, a.ID, principal(201))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	_, err = f.svc.Request(f.ctx, a.ID, principal(200))
	require.NoError(t, err)

	elig, err := f.svc.Eligibility(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, elig.MeetsPrincipalMinimum)
	assert.True(t, elig.WithdrawablePrincipal.IsZero())
	assert.True(t, elig.OutstandingPrincipal.Equal(decimal.NewFromInt(600)))
}

func TestRequestFrozenAccount(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 100, 1000, 0)
	stored := f.reload(t, a.ID)
	stored.Status = entities.AccountStatusFrozen
	require.NoError(t, f.store.Repos().Accounts.Update(f.ctx, stored))

	_, err := f.svc.Request(f.ctx, a.ID, interest(20))
	assert.True(t, domainerrors.IsForbidden(err))
}

func TestDecideLifecycle(t *testing.T) {
	f := newFixture(t)
	admin := uuid.New()
	a := f.account(t, 1000, 100, 200, 0)

	w, err := f.svc.Request(f.ctx, a.ID, interest(40))
	require.NoError(t, err)

	_, err = f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionProcess}, admin)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition, "pending cannot be processed directly")

	approved, err := f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionApprove, Note: "ok"}, admin)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, admin, *approved.DecidedBy)
	assert.True(t, f.reload(t, a.ID).InterestAccrued.Equal(decimal.NewFromInt(100)), "approval does not debit")

	processed, err := f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionProcess, PayoutTxHash: "0xpayout"}, admin)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusProcessed, processed.Status)
	require.NotNil(t, processed.ProcessedAt)
	assert.True(t, f.reload(t, a.ID).InterestAccrued.Equal(decimal.NewFromInt(60)))

	for _, d := range []entities.WithdrawalDecision{
		entities.WithdrawalDecisionProcess,
		entities.WithdrawalDecisionApprove,
		entities.WithdrawalDecisionReject,
		entities.WithdrawalDecisionCancel,
	} {
		_, err := f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: d}, admin)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition, "decision %s", d)
		assert.True(t, domainerrors.IsConflict(err))
	}
	assert.True(t, f.reload(t, a.ID).InterestAccrued.Equal(decimal.NewFromInt(60)), "debited exactly once")
}

func TestApprovalRevalidatesCap(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 100, 200, 0)

	w, err := f.svc.Request(f.ctx, a.ID, interest(50))
	require.NoError(t, err)

	stored := f.reload(t, a.ID)
	stored.InterestAccrued = decimal.NewFromInt(30)
	require.NoError(t, f.store.Repos().Accounts.Update(f.ctx, stored))

	_, err = f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionApprove}, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	got, err := f.store.Repos().Withdrawals.GetByID(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, got.Status)
}

func TestProcessFailsClosed(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 0, 0, 800)

	w, err := f.svc.Request(f.ctx, a.ID, principal(300))
	require.NoError(t, err)
	_, err = f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionApprove}, uuid.New())
	require.NoError(t, err)

	stored := f.reload(t, a.ID)
	stored.AvailablePrincipal = decimal.NewFromInt(100)
	require.NoError(t, f.store.Repos().Accounts.Update(f.ctx, stored))

	_, err = f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: entities.WithdrawalDecisionProcess}, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)
	assert.True(t, f.reload(t, a.ID).AvailablePrincipal.Equal(decimal.NewFromInt(100)))

	got, err := f.store.Repos().Withdrawals.GetByID(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusApproved, got.Status)
}

func TestProcessPrincipalDebitsAvailableOnly(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 0, 0, 800)

	w, err := f.svc.Request(f.ctx, a.ID, principal(300))
	require.NoError(t, err)
	for _, d := range []entities.WithdrawalDecision{entities.WithdrawalDecisionApprove, entities.WithdrawalDecisionProcess} {
		_, err = f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: d}, uuid.New())
		require.NoError(t, err)
	}

	got := f.reload(t, a.ID)
	assert.True(t, got.AvailablePrincipal.Equal(decimal.NewFromInt(700)))
	assert.True(t, got.Principal.Equal(decimal.NewFromInt(1000)))
}

func (f *fixture) settle(t *testing.T, w *entities.WithdrawalRequest) {
	t.Helper()
	for _, d := range []entities.WithdrawalDecision{entities.WithdrawalDecisionApprove, entities.WithdrawalDecisionProcess} {
		_, err := f.svc.Decide(f.ctx, w.ID, &entities.DecideWithdrawalRequest{Decision: d}, uuid.New())
		require.NoError(t, err)
	}
}

func TestProcessedPrincipalKeepsLockedPrincipal(t *testing.T) {
	f := newFixture(t)
	// 1600 principal of which 600 is unlocked
	a := f.account(t, 1600, 0, 0, 600)

	w, err := f.svc.Request(f.ctx, a.ID, principal(500))
	require.NoError(t, err)
	f.settle(t, w)

	_, err = f.svc.Request(f.ctx, a.ID, principal(500))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)
	_, err = f.svc.Request(f.ctx, a.ID, principal(101))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	last, err := f.svc.Request(f.ctx, a.ID, principal(100))
	require.NoError(t, err)
	f.settle(t, last)

	_, err = f.svc.Request(f.ctx, a.ID, principal(20))
	assert.ErrorIs(t, err, domainerrors.ErrWithdrawalCapExceeded)

	got := f.reload(t, a.ID)
	assert.True(t, got.AvailablePrincipal.Equal(decimal.NewFromInt(1000)), "locked principal stays in the account")

	elig, err := f.svc.Eligibility(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, elig.WithdrawablePrincipal.IsZero())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 1000, 100, 200, 0)
	stranger := f.account(t, 1000, 100, 200, 0)

	w, err := f.svc.Request(f.ctx, a.ID, interest(30))
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.ctx, stranger.ID, w.ID)
	assert.True(t, domainerrors.IsForbidden(err))

	cancelled, err := f.svc.Cancel(f.ctx, a.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(f.ctx, a.ID, w.ID)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	// a cancelled request frees the monthly interest slot
	_, err = f.svc.Request(f.ctx, a.ID, interest(30))
	require.NoError(t, err)

	list, err := f.svc.List(f.ctx, a.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
