package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	lease, err := locker.Acquire(ctx, "accrual:2024-05-10", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "accrual:2024-05-10", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "accrual:2024-05-11", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := locker.Acquire(ctx, "accrual:2024-05-10", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 0, 5, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.clock = func() time.Time { return now }

	stale, err := locker.Acquire(ctx, "reconciler", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, "reconciler", time.Minute)
	require.NoError(t, err)

	// the expired holder must not release the new lease
	require.NoError(t, stale.Release(ctx))
	_, err = locker.Acquire(ctx, "reconciler", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, fresh.Release(ctx))
}
