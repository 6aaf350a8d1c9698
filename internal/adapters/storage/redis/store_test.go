package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/PabloGalante/justice-council/internal/adapters/storage/redis"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/justice-council/internal/domain"
)

func newStore(t *testing.T, mr *miniredis.Miniredis, opts ...redisstore.Option) *redisstore.Store {
	t.Helper()
	store, err := redisstore.NewStore(context.Background(), "redis://"+mr.Addr(), opts...)
	require.NoError(t, err)
	return store
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, now func() time.Time) domain.TurnStore {
		return newStore(t, miniredis.RunT(t), redisstore.WithClock(now))
	})
}

func TestTTLExpiresSessionKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := newStore(t, mr, redisstore.WithTTL(time.Hour))
	defer store.Close()

	_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "hello")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("council:session:s1:turns"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("council:session:s1:turns"))
}

func TestClearAllForgetsSessionIndex(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := newStore(t, mr)
	defer store.Close()

	_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "hello")
	require.NoError(t, err)
	require.NoError(t, store.ClearAll(ctx))

	assert.False(t, mr.Exists("council:sessions"))
	assert.False(t, mr.Exists("council:session:s1:seq"))
}

func TestUnreachableServerIsStorageFault(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := newStore(t, mr)
	defer store.Close()

	mr.Close()

	_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "hello")
	require.Error(t, err)
	assert.True(t, domain.IsStorageFault(err))
}
