package payment_reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/pkg/logger"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ReconcilePendingPayments(ctx context.Context) (*entities.ReconcileReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*entities.ReconcileReport)
	return report, args.Error(1)
}

func (m *mockSource) ReconcilePendingTransfers(ctx context.Context) (*entities.ReconcileReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*entities.ReconcileReport)
	return report, args.Error(1)
}

func newReconciler(t *testing.T, source Source, locker cache.Locker) *Reconciler {
	t.Helper()
	r, err := NewReconciler(Config{Enabled: true, Interval: time.Minute}, source, locker, logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestRunOnceCoversBothSources(t *testing.T) {
	source := new(mockSource)
	source.On("ReconcilePendingPayments", mock.Anything).Return(&entities.ReconcileReport{Checked: 2, Confirmed: 1, Pending: 1}, nil)
	source.On("ReconcilePendingTransfers", mock.Anything).Return(&entities.ReconcileReport{Checked: 1, Failed: 1}, nil)

	result, err := newReconciler(t, source, cache.NewLocalLocker()).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Payments.Confirmed)
	assert.Equal(t, 1, result.Transfers.Failed)
	source.AssertExpectations(t)
}

func TestRunOnceContinuesAfterOneSourceFails(t *testing.T) {
	source := new(mockSource)
	source.On("ReconcilePendingPayments", mock.Anything).Return(nil, errors.New("db down"))
	source.On("ReconcilePendingTransfers", mock.Anything).Return(&entities.ReconcileReport{Checked: 1, Confirmed: 1}, nil)

	result, err := newReconciler(t, source, cache.NewLocalLocker()).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments reconciliation")
	assert.Equal(t, 1, result.Transfers.Confirmed)
}

func TestRunOnceRespectsLock(t *testing.T) {
	locker := cache.NewLocalLocker()
	lease, err := locker.Acquire(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	source := new(mockSource)
	_, err = newReconciler(t, source, locker).RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, domainerrors.IsConflict(err))
	source.AssertNotCalled(t, "ReconcilePendingPayments", mock.Anything)
}

func TestShutdownStopsLoop(t *testing.T) {
	r := newReconciler(t, new(mockSource), cache.NewLocalLocker())
	require.NoError(t, r.Start(context.Background()))
	assert.NoError(t, r.Shutdown(time.Second))
}
