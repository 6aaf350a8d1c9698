package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/PabloGalante/justice-council/internal/adapters/storage"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/migrations"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
)

const backend = "postgres"

// Store handles PostgreSQL turn storage over a connection pool.
type Store struct {
	pool  *pgxpool.Pool
	clock *storage.Clock
	mu    sync.Mutex
}

// NewStore connects to databaseURL and applies migrations. now may be nil.
func NewStore(ctx context.Context, databaseURL string, now func() time.Time) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("databaseURL is required for postgres store")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrations.Up(ctx, db, "postgres")
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, clock: storage.NewClock(now)}, nil
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

	err := s.pool.QueryRow(ctx, `
		INSERT INTO turns (turn_id, session_id, speaker, role, content, created_at_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, string(turn.ID), string(sessionID), speaker, string(role), content, turn.CreatedAt.UnixNano()).Scan(&turn.Seq)
	if err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}
	return turn, nil
}

func (s *Store) Recent(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	defer metrics.ObserveStore(backend, "recent", time.Now())
	cutoff := s.clock.Cutoff(window)

	rows, err := s.pool.Query(ctx, `
		SELECT id, turn_id, speaker, role, content, created_at_ns
		FROM turns
		WHERE session_id = $1 AND created_at_ns >= $2
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

	_, err := s.pool.Exec(ctx, `DELETE FROM turns WHERE session_id = $1`, string(sessionID))
	return domain.NewStorageError(backend, "delete_session", err)
}

func (s *Store) ClearAll(ctx context.Context) error {
	defer metrics.ObserveStore(backend, "clear_all", time.Now())

	_, err := s.pool.Exec(ctx, `TRUNCATE turns`)
	return domain.NewStorageError(backend, "clear_all", err)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return domain.NewStorageError(backend, "ping", s.pool.Ping(ctx))
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ domain.TurnStore = (*Store)(nil)
