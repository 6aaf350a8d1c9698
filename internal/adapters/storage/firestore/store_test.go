package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/justice-council/internal/adapters/storage/firestore"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/storagetest"
	"github.com/PabloGalante/justice-council/internal/domain"
)

// Runs only against the emulator: FIRESTORE_EMULATOR_HOST=localhost:8080
func TestStoreConformance(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storagetest.Run(t, func(t *testing.T, now func() time.Time) domain.TurnStore {
		ctx := context.Background()
		store, err := firestore.NewStore(ctx, "council-test", now)
		require.NoError(t, err)
		require.NoError(t, store.ClearAll(ctx))
		return store
	})
}
