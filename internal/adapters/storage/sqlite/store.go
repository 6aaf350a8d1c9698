package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/PabloGalante/justice-council/internal/adapters/storage"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/migrations"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
)

const backend = "sqlite"

// DefaultPath is used when no database path is configured.
const DefaultPath = "./data/justice_memory.db"

// Store keeps turns in a single SQLite table.
type Store struct {
	db    *sql.DB
	clock *storage.Clock

	// mu keeps the clock stamp and the insert in the same order.
	mu sync.Mutex
}

// NewStore opens (creating if needed) the database at dbPath and applies
// migrations. now may be nil.
func NewStore(ctx context.Context, dbPath string, now func() time.Time) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// one writer at a time; SQLite serializes them anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	if err := migrations.Up(ctx, db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, clock: storage.NewClock(now)}, nil
}

func (s *Store) Append(
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

	turn := &domain.Turn{
		ID:        domain.NewTurnID(),
		SessionID: sessionID,
		Speaker:   speaker,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock.Stamp(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (turn_id, session_id, speaker, role, content, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(turn.ID), string(sessionID), speaker, string(role), content, turn.CreatedAt.UnixNano())
	if err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}

	if turn.Seq, err = res.LastInsertId(); err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}
	return turn, nil
}

func (s *Store) Recent(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	defer metrics.ObserveStore(backend, "recent", time.Now())
	cutoff := s.clock.Cutoff(window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, speaker, role, content, created_at_ns
		FROM turns
		WHERE session_id = ? AND created_at_ns >= ?
		ORDER BY created_at_ns ASC, id ASC
	`, string(sessionID), cutoff.UnixNano())
	if err != nil {
		return nil, domain.NewStorageError(backend, "recent", err)
	}
	defer rows.Close()

	turns := []*domain.Turn{}
	for rows.Next() {
		var (
			turn      = &domain.Turn{SessionID: sessionID}
			id, role  string
			createdNs int64
		)
		if err := rows.Scan(&turn.Seq, &id, &turn.Speaker, &role, &turn.Content, &createdNs); err != nil {
			return nil, domain.NewStorageError(backend, "recent", err)
		}
		turn.ID = domain.TurnID(id)
		turn.Role = domain.Role(role)
		turn.CreatedAt = time.Unix(0, createdNs).UTC()
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(backend, "recent", err)
	}
	return turns, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	defer metrics.ObserveStore(backend, "delete_session", time.Now())

	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, string(sessionID))
	return domain.NewStorageError(backend, "delete_session", err)
}

func (s *Store) ClearAll(ctx context.Context) error {
	defer metrics.ObserveStore(backend, "clear_all", time.Now())

	_, err := s.db.ExecContext(ctx, `DELETE FROM turns`)
	return domain.NewStorageError(backend, "clear_all", err)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return domain.NewStorageError(backend, "ping", s.db.PingContext(ctx))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ domain.TurnStore = (*Store)(nil)
