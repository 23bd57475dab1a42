package state

import (
	"context"
	"testing"
	"time"

	"storefront/scraper/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisManager(t *testing.T) (StateManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStateManager(client, "test", time.Minute), mr
}

func TestRedisStateManager_RunLock(t *testing.T) {
	ctx := context.Background()
	sm, mr := newRedisManager(t)

	release, err := sm.AcquireRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:run:lock"))
	assert.Equal(t, time.Minute, mr.TTL("test:run:lock"))

	_, err = sm.AcquireRun(ctx, "run-2")
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:run:lock"))

	release2, err := sm.AcquireRun(ctx, "run-2")
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestRedisStateManager_ReleaseLeavesForeignLock(t *testing.T) {
	ctx := context.Background()
	sm, mr := newRedisManager(t)

	release, err := sm.AcquireRun(ctx, "run-1")
	require.NoError(t, err)

	// The lock expired and another run took it.
	mr.FastForward(2 * time.Minute)
	release2, err := sm.AcquireRun(ctx, "run-2")
	require.NoError(t, err)
	defer func() { _ = release2(ctx) }()

	require.NoError(t, release(ctx))
	got, err := mr.Get("test:run:lock")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got)
}

func TestRedisStateManager_RenewsLockWhileHeld(t *testing.T) {
	ctx := context.Background()
	sm, mr := newRedisManager(t)
	sm.(*redisStateManager).renewEvery = 10 * time.Millisecond

	release, err := sm.AcquireRun(ctx, "run-1")
	require.NoError(t, err)

	// Outlive the original TTL several times over.
	for range 3 {
		mr.FastForward(50 * time.Second)
		require.Eventually(t, func() bool {
			return mr.TTL("test:run:lock") == time.Minute
		}, time.Second, 5*time.Millisecond)
	}

	_, err = sm.AcquireRun(ctx, "run-2")
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:run:lock"))

	// No renewal after release.
	time.Sleep(30 * time.Millisecond)
	assert.False(t, mr.Exists("test:run:lock"))
}

func TestRedisStateManager_StopsRenewingForeignLock(t *testing.T) {
	ctx := context.Background()
	sm, mr := newRedisManager(t)
	sm.(*redisStateManager).renewEvery = 10 * time.Millisecond

	release, err := sm.AcquireRun(ctx, "run-1")
	require.NoError(t, err)

	require.NoError(t, mr.Set("test:run:lock", "run-2"))
	mr.SetTTL("test:run:lock", 5*time.Second)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 5*time.Second, mr.TTL("test:run:lock"))
	require.NoError(t, release(ctx))

	got, err := mr.Get("test:run:lock")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got)
}

func TestRedisStateManager_Checkpoint(t *testing.T) {
	ctx := context.Background()
	sm, _ := newRedisManager(t)

	cp, err := sm.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	want := domain.Checkpoint{
		RunID:     "run-1",
		Page:      3,
		Products:  48,
		Failures:  2,
		Finished:  true,
		Error:     "listing page 4: HTTP 503",
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sm.SaveCheckpoint(ctx, want))

	got, err := sm.LastCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Page, got.Page)
	assert.Equal(t, want.Products, got.Products)
	assert.Equal(t, want.Failures, got.Failures)
	assert.True(t, got.Finished)
	assert.Equal(t, want.Error, got.Error)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestLocalStateManager(t *testing.T) {
	ctx := context.Background()
	sm := NewLocalStateManager()

	release, err := sm.AcquireRun(ctx, "run-1")
	require.NoError(t, err)

	_, err = sm.AcquireRun(ctx, "run-2")
	require.ErrorIs(t, err, domain.ErrRunInProgress)

	require.NoError(t, release(ctx))
	require.Error(t, release(ctx))

	cp, err := sm.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, sm.SaveCheckpoint(ctx, domain.Checkpoint{RunID: "run-1", Page: 2}))
	cp, err = sm.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Page)
}
