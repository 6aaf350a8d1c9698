package conversation

import (
	"sync"

	"github.com/PabloGalante/justice-council/internal/domain"
)

// sessionLocks hands out one mutex per session and drops it when the last
// holder releases it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[domain.SessionID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[domain.SessionID]*sessionLock)}
}

func (l *sessionLocks) lock(id domain.SessionID) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()

		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
