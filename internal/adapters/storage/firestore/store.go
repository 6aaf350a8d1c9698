package firestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/justice-council/internal/adapters/storage"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
)

const backend = "firestore"

type Store struct {
	client *firestore.Client
	clock  *storage.Clock
	mu     sync.Mutex
}

// NewStore creates a Firestore store.
// Uses the project passed (COUNCIL_STORE_GCP_PROJECT). now may be nil.
func NewStore(ctx context.Context, projectID string, now func() time.Time) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, clock: storage.NewClock(now)}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.client.Collection("sessions").Doc(string(id))
}

func (s *Store) turnsCol(id domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(id).Collection("turns")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type turnDoc struct {
	SessionID string    `firestore:"session_id"`
	Speaker   string    `firestore:"speaker"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`
}

// ─────────────────────────────────────────
// TurnStore implementation
// ─────────────────────────────────────────

// Append stores the turn under its ULID; ids minted by this process sort in
// insertion order, which breaks created_at ties.
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
		// Firestore keeps microseconds
		CreatedAt: s.clock.Stamp().Truncate(time.Microsecond),
	}

	doc := turnDoc{
		SessionID: string(sessionID),
		Speaker:   speaker,
		Role:      string(role),
		Content:   content,
		CreatedAt: turn.CreatedAt,
	}

	if _, err := s.turnsCol(sessionID).Doc(string(turn.ID)).Create(ctx, doc); err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}
	return turn, nil
}

func (s *Store) Recent(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	defer metrics.ObserveStore(backend, "recent", time.Now())
	cutoff := s.clock.Cutoff(window)

	iter := s.turnsCol(sessionID).
		Where("created_at", ">=", cutoff).
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	turns := []*domain.Turn{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, domain.NewStorageError(backend, "recent", err)
		}

		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, domain.NewStorageError(backend, "recent", fmt.Errorf("decode turnDoc: %w", err))
		}

		turns = append(turns, &domain.Turn{
			ID:        domain.TurnID(snap.Ref.ID),
			SessionID: sessionID,
			Speaker:   doc.Speaker,
			Role:      domain.Role(doc.Role),
			Content:   doc.Content,
			CreatedAt: doc.CreatedAt.UTC(),
		})
	}
	return turns, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	defer metrics.ObserveStore(backend, "delete_session", time.Now())

	iter := s.turnsCol(sessionID).Documents(ctx)
	return domain.NewStorageError(backend, "delete_session", s.deleteAll(ctx, iter))
}

// ClearAll deletes every turn of every session through a collection group
// query.
func (s *Store) ClearAll(ctx context.Context) error {
	defer metrics.ObserveStore(backend, "clear_all", time.Now())

	iter := s.client.CollectionGroup("turns").Documents(ctx)
	return domain.NewStorageError(backend, "clear_all", s.deleteAll(ctx, iter))
}

func (s *Store) deleteAll(ctx context.Context, iter *firestore.DocumentIterator) error {
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []deleteJob
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			bw.End()
			return err
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	return firstJobError(jobs)
}

// deleteJob is the part of *firestore.BulkWriterJob deleteAll waits on.
type deleteJob interface {
	Results() (*firestore.WriteResult, error)
}

// firstJobError blocks until every job settles and returns the first failure.
func firstJobError(jobs []deleteJob) error {
	var first error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Ping reads a single document to check connectivity; a missing document is fine.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection("sessions").Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return domain.NewStorageError(backend, "ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ domain.TurnStore = (*Store)(nil)
