package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/justice-council/internal/adapters/storage/postgres"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/justice-council/internal/domain"
)

// Runs only against a real server: COUNCIL_TEST_POSTGRES_URL=postgres://...
func TestStoreConformance(t *testing.T) {
	url := os.Getenv("COUNCIL_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("COUNCIL_TEST_POSTGRES_URL not set")
	}

	storagetest.Run(t, func(t *testing.T, now func() time.Time) domain.TurnStore {
		ctx := context.Background()
		store, err := postgres.NewStore(ctx, url, now)
		require.NoError(t, err)
		require.NoError(t, store.ClearAll(ctx))
		return store
	})
}
