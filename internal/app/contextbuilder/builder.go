// Package contextbuilder turns a session's recent turns into the
// role-normalized context one agent sees.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/justice-council/internal/domain"
)

type Builder struct {
	store    domain.TurnStore
	window   time.Duration
	maxTurns int
}

// New returns a Builder reading store through window. A maxTurns <= 0 uses
// domain.DefaultMaxTurns; a negative window is treated as zero.
func New(store domain.TurnStore, window time.Duration, maxTurns int) *Builder {
	if maxTurns <= 0 {
		maxTurns = domain.DefaultMaxTurns
	}
	if window < 0 {
		window = 0
	}
	return &Builder{store: store, window: window, maxTurns: maxTurns}
}

// Build returns at most maxTurns of the most recent turns, oldest first, as
// seen by forAgent. A maxTurns <= 0 falls back to the builder's default.
func (b *Builder) Build(ctx context.Context, sessionID domain.SessionID, forAgent string, maxTurns int) ([]domain.ContextEntry, error) {
	if maxTurns <= 0 {
		maxTurns = b.maxTurns
	}

	turns, err := b.store.Recent(ctx, sessionID, b.window)
	if err != nil {
		return nil, fmt.Errorf("building context for %s: %w", forAgent, err)
	}

	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	entries := make([]domain.ContextEntry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, domain.ContextEntry{
			Role:    RoleFor(t, forAgent),
			Content: Render(t),
		})
	}
	return entries, nil
}

// RoleFor maps a turn to own voice only when forAgent spoke it as assistant.
func RoleFor(t *domain.Turn, forAgent string) domain.ContextRole {
	if t.Role == domain.RoleAssistant && t.Speaker == forAgent {
		return domain.ContextOwnVoice
	}
	return domain.ContextExternalInput
}

// Render prefixes the trimmed content with its speaker.
func Render(t *domain.Turn) string {
	return "[" + t.Speaker + "]: " + strings.TrimSpace(t.Content)
}
