package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/justice-council/internal/adapters/storage/memory"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/justice-council/internal/domain"
)

func TestTurnStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, now func() time.Time) domain.TurnStore {
		return memory.NewTurnStore(now)
	})
}

func TestRecentReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTurnStore(nil)

	_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "original")
	require.NoError(t, err)

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	turns[0].Content = "mutated"

	again, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestClockGoingBackwardsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	clock := storagetest.NewFakeClock()
	store := memory.NewTurnStore(clock.Now)

	first, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "first")
	require.NoError(t, err)

	clock.Advance(-time.Minute)
	second, err := store.Append(ctx, "s1", "B", domain.RoleAssistant, "second")
	require.NoError(t, err)

	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
	assert.Greater(t, second.Seq, first.Seq)
}

func TestConcurrentAppendsAreTotallyOrdered(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTurnStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, turns, 50)
	for i := 1; i < len(turns); i++ {
		assert.Greater(t, turns[i].Seq, turns[i-1].Seq)
		assert.False(t, turns[i].CreatedAt.Before(turns[i-1].CreatedAt))
	}
}
