package domain

import (
	"context"
	"time"
)

// TurnStore is the append-only log of every session's turns.
type TurnStore interface {
	Append(ctx context.Context, sessionID SessionID, speaker string, role Role, content string) (*Turn, error)

	// Recent returns the session's turns no older than window, oldest first.
	Recent(ctx context.Context, sessionID SessionID, window time.Duration) ([]*Turn, error)

	// DeleteSession is a no-op for unknown sessions.
	DeleteSession(ctx context.Context, sessionID SessionID) error
	ClearAll(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Stimulus is the utterance an agent is reacting to.
type Stimulus struct {
	Speaker string
	Text    string
}

// GenerationRequest is everything a provider needs to produce one reply.
type GenerationRequest struct {
	Speaker         string // persona name, used as the reply cue
	Instruction     string
	Context         []ContextEntry
	Stimulus        Stimulus
	MaxOutputTokens int
}

// Generator produces one utterance. It is the only outbound call of the core.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
