// Package storagetest is a conformance suite every domain.TurnStore backend
// runs from its own tests.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/justice-council/internal/domain"
)

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Factory returns a fresh, empty store reading time from now.
type Factory func(t *testing.T, now func() time.Time) domain.TurnStore

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, store domain.TurnStore, clock *FakeClock)
	}{
		{"RecentReturnsInsertionOrderOnEqualTimestamps", testEqualTimestamps},
		{"RecentIsAscendingByTime", testAscending},
		{"WindowExcludesOlderTurns", testWindow},
		{"ZeroWindowKeepsTurnsStampedNow", testZeroWindow},
		{"SessionsAreIsolated", testIsolation},
		{"DeleteSessionIsIdempotent", testDeleteSession},
		{"ClearAllRemovesEverySession", testClearAll},
		{"AppendRejectsInvalidTurns", testValidation},
		{"AppendRoundTripsFields", testRoundTrip},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewFakeClock()
			store := newStore(t, clock.Now)
			t.Cleanup(func() { _ = store.Close() })
			tc.fn(t, store, clock)
		})
	}
}

func appendTurn(t *testing.T, store domain.TurnStore, id domain.SessionID, speaker string, role domain.Role, content string) *domain.Turn {
	t.Helper()
	turn, err := store.Append(context.Background(), id, speaker, role, content)
	require.NoError(t, err)
	require.NotNil(t, turn)
	return turn
}

func speakers(turns []*domain.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Speaker)
	}
	return out
}

func testEqualTimestamps(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	names := []string{"User", "A", "B", "C", "D", "E"}
	for i, n := range names {
		role := domain.RoleAssistant
		if i == 0 {
			role = domain.RoleUser
		}
		appendTurn(t, store, "s1", n, role, "line from "+n)
	}

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, names, speakers(turns))
	for _, turn := range turns {
		assert.True(t, turn.CreatedAt.Equal(clock.Now()), "timestamp %v", turn.CreatedAt)
	}
}

func testAscending(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	for _, n := range []string{"A", "B", "C"} {
		appendTurn(t, store, "s1", n, domain.RoleAssistant, n)
		clock.Advance(time.Second)
	}

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"A", "B", "C"}, speakers(turns))
	for i := 1; i < len(turns); i++ {
		assert.False(t, turns[i].CreatedAt.Before(turns[i-1].CreatedAt))
	}
}

func testWindow(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	appendTurn(t, store, "s1", "Old", domain.RoleAssistant, "said 31 minutes ago")
	clock.Advance(2 * time.Minute)
	appendTurn(t, store, "s1", "Fresh", domain.RoleAssistant, "said 29 minutes ago")
	clock.Advance(29 * time.Minute)

	turns, err := store.Recent(ctx, "s1", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fresh"}, speakers(turns))

	turns, err = store.Recent(ctx, "s1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"Old", "Fresh"}, speakers(turns))

	clock.Advance(time.Hour)
	turns, err = store.Recent(ctx, "s1", 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func testZeroWindow(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	appendTurn(t, store, "s1", "A", domain.RoleAssistant, "now")

	turns, err := store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	clock.Advance(time.Second)
	turns, err = store.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = store.Recent(ctx, "s1", -time.Minute)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func testIsolation(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	appendTurn(t, store, "s1", "A", domain.RoleAssistant, "in s1")
	appendTurn(t, store, "s2", "B", domain.RoleAssistant, "in s2")

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, speakers(turns))

	turns, err = store.Recent(ctx, "missing", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func testDeleteSession(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	appendTurn(t, store, "s1", "A", domain.RoleAssistant, "one")
	appendTurn(t, store, "s2", "B", domain.RoleAssistant, "two")

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	require.NoError(t, store.DeleteSession(ctx, "s1"))
	require.NoError(t, store.DeleteSession(ctx, "never-existed"))

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = store.Recent(ctx, "s2", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	// the session can be reused after deletion
	appendTurn(t, store, "s1", "A", domain.RoleAssistant, "again")
	turns, err = store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func testClearAll(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	appendTurn(t, store, "s1", "A", domain.RoleAssistant, "one")
	appendTurn(t, store, "s2", "B", domain.RoleAssistant, "two")

	require.NoError(t, store.ClearAll(ctx))
	require.NoError(t, store.ClearAll(ctx))

	for _, id := range []domain.SessionID{"s1", "s2"} {
		turns, err := store.Recent(ctx, id, domain.DefaultWindow)
		require.NoError(t, err)
		assert.Empty(t, turns)
	}
}

func testValidation(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()

	_, err := store.Append(ctx, "s1", "A", domain.RoleAssistant, "   \n\t")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = store.Append(ctx, "s1", "A", domain.Role("system"), "hello")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = store.Append(ctx, "", "A", domain.RoleAssistant, "hello")
	assert.ErrorIs(t, err, domain.ErrEmptySession)

	_, err = store.Append(ctx, "s1", " ", domain.RoleAssistant, "hello")
	assert.ErrorIs(t, err, domain.ErrEmptySpeaker)

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func testRoundTrip(t *testing.T, store domain.TurnStore, clock *FakeClock) {
	ctx := context.Background()
	content := "Is punishment ever justified? ¿Y la reparación? 正义"
	written := appendTurn(t, store, "s1", domain.UserSpeaker, domain.RoleUser, content)

	assert.NotEmpty(t, written.ID)
	assert.Equal(t, domain.SessionID("s1"), written.SessionID)
	assert.True(t, written.CreatedAt.Equal(clock.Now()))

	turns, err := store.Recent(ctx, "s1", domain.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	got := turns[0]
	assert.Equal(t, written.ID, got.ID)
	assert.Equal(t, domain.SessionID("s1"), got.SessionID)
	assert.Equal(t, domain.UserSpeaker, got.Speaker)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Equal(t, content, got.Content)
	assert.True(t, got.CreatedAt.Equal(written.CreatedAt))
}
