package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type SessionID string
type TurnID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two stored roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContextRole is the role a turn takes when handed to a generator.
type ContextRole string

const (
	ContextOwnVoice      ContextRole = "own_voice"      // the agent's own prior speech
	ContextExternalInput ContextRole = "external_input" // the user and every other agent
)

// UserSpeaker is the speaker label of every user turn.
const UserSpeaker = "User"

// DefaultWindow is the rolling window used when reading recent history.
const DefaultWindow = 30 * time.Minute

// DefaultMaxTurns bounds the context handed to a generator.
const DefaultMaxTurns = 12

type Timestamp = time.Time

// NewTurnID returns a lexically sortable id; ids minted by one process are
// monotonic even within the same millisecond.
func NewTurnID() TurnID {
	return TurnID(ulid.Make().String())
}
