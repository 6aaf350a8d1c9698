package domain

import "strings"

// Turn is one immutable utterance in a session.
type Turn struct {
	ID        TurnID
	SessionID SessionID
	Speaker   string
	Role      Role
	Content   string
	CreatedAt Timestamp

	// Seq is the backend's insertion counter; it breaks ties between equal
	// timestamps. Backends without one leave it zero.
	Seq int64
}

// ValidateTurn checks the fields a caller supplies to Append.
func ValidateTurn(sessionID SessionID, speaker string, role Role, content string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	if strings.TrimSpace(speaker) == "" {
		return ErrEmptySpeaker
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Persona is static configuration: who an agent is and how it speaks.
type Persona struct {
	Key         string
	Name        string
	Instruction string

	// Custom marks a user-authored persona; it answers first when active.
	Custom bool

	// Provider optionally pins the persona to one generation provider.
	Provider string
}

// ContextEntry is one role-normalized line of generation context.
type ContextEntry struct {
	Role    ContextRole
	Content string
}
