package memory

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/justice-council/internal/adapters/storage"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
)

const backend = "memory"

// TurnStore keeps every session in process memory. It is NOT persistent and
// is only suitable for development / local mode.
type TurnStore struct {
	mu       sync.RWMutex
	clock    *storage.Clock
	seq      int64
	sessions map[domain.SessionID][]*domain.Turn
}

// NewTurnStore creates an empty store; now may be nil.
func NewTurnStore(now func() time.Time) *TurnStore {
	return &TurnStore{
		clock:    storage.NewClock(now),
		sessions: make(map[domain.SessionID][]*domain.Turn),
	}
}

func (s *TurnStore) Append(
	ctx context.Context,
	sessionID domain.SessionID,
	speaker string,
	role domain.Role,
	content string,
) (*domain.Turn, error) {
	if err := domain.ValidateTurn(sessionID, speaker, role, content); err != nil {
		return nil, err
	}
	defer metrics.ObserveStore(backend, "append", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	turn := &domain.Turn{
		ID:        domain.NewTurnID(),
		SessionID: sessionID,
		Speaker:   speaker,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock.Stamp(),
		Seq:       s.seq,
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	return turn, nil
}

// Recent relies on the slice already being in (timestamp, seq) order: the
// clock never goes backwards and appends happen under the write lock.
func (s *TurnStore) Recent(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	defer metrics.ObserveStore(backend, "recent", time.Now())
	cutoff := s.clock.Cutoff(window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]*domain.Turn, 0, len(turns))
	for _, t := range turns {
		if !t.CreatedAt.Before(cutoff) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *TurnStore) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	defer metrics.ObserveStore(backend, "delete_session", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *TurnStore) ClearAll(ctx context.Context) error {
	defer metrics.ObserveStore(backend, "clear_all", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[domain.SessionID][]*domain.Turn)
	return nil
}

func (s *TurnStore) Ping(ctx context.Context) error { return nil }

func (s *TurnStore) Close() error { return nil }

var _ domain.TurnStore = (*TurnStore)(nil)
