package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/justice-council/internal/adapters/storage"
	"github.com/PabloGalante/justice-council/internal/domain"
	"github.com/PabloGalante/justice-council/internal/metrics"
)

const backend = "redis"

// seqWidth pads the member prefix so members with equal scores sort by
// insertion sequence.
const seqWidth = 20

const sessionsKey = "council:sessions"

// Store keeps each session as a sorted set scored by turn time.
type Store struct {
	client *redis.Client
	clock  *storage.Clock
	ttl    time.Duration
	mu     sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires a session's keys ttl after its last append. Zero keeps
// them until DeleteSession or ClearAll.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = storage.NewClock(now) }
}

// NewStore creates a new Redis store from a redis:// URL.
func NewStore(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(ropts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	s := &Store{client: client, clock: storage.NewClock(nil)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// turnsKey returns the key for a session's turn sorted set.
func turnsKey(id domain.SessionID) string {
	return fmt.Sprintf("council:session:%s:turns", id)
}

// seqKey returns the key for a session's insertion counter.
func seqKey(id domain.SessionID) string {
	return fmt.Sprintf("council:session:%s:seq", id)
}

type turnRecord struct {
	ID        string `json:"id"`
	Speaker   string `json:"speaker"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at_ns"`
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

	seq, err := s.client.Incr(ctx, seqKey(sessionID)).Result()
	if err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}

	turn := &domain.Turn{
		ID:        domain.NewTurnID(),
		SessionID: sessionID,
		Speaker:   speaker,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock.Stamp(),
		Seq:       seq,
	}

	data, err := json.Marshal(turnRecord{
		ID:        string(turn.ID),
		Speaker:   speaker,
		Role:      string(role),
		Content:   content,
		CreatedAt: turn.CreatedAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding turn: %w", err)
	}

	member := fmt.Sprintf("%0*d:%s", seqWidth, seq, data)
	key := turnsKey(sessionID)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(turn.CreatedAt.UnixMicro()),
			Member: member,
		})
		pipe.SAdd(ctx, sessionsKey, string(sessionID))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
			pipe.Expire(ctx, seqKey(sessionID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError(backend, "append", err)
	}
	return turn, nil
}

func (s *Store) Recent(ctx context.Context, sessionID domain.SessionID, window time.Duration) ([]*domain.Turn, error) {
	defer metrics.ObserveStore(backend, "recent", time.Now())
	cutoff := s.clock.Cutoff(window)

	results, err := s.client.ZRangeByScore(ctx, turnsKey(sessionID), &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, domain.NewStorageError(backend, "recent", err)
	}

	turns := make([]*domain.Turn, 0, len(results))
	for _, member := range results {
		turn, err := decodeMember(sessionID, member)
		if err != nil {
			return nil, domain.NewStorageError(backend, "recent", err)
		}
		// the score is µs; drop anything the nanosecond stamp puts outside
		if turn.CreatedAt.Before(cutoff) {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func decodeMember(sessionID domain.SessionID, member string) (*domain.Turn, error) {
	prefix, data, ok := strings.Cut(member, ":")
	if !ok || len(prefix) != seqWidth {
		return nil, fmt.Errorf("malformed turn member %q", member)
	}

	seq, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed turn sequence: %w", err)
	}

	var rec turnRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decoding turn: %w", err)
	}

	return &domain.Turn{
		ID:        domain.TurnID(rec.ID),
		SessionID: sessionID,
		Speaker:   rec.Speaker,
		Role:      domain.Role(rec.Role),
		Content:   rec.Content,
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
		Seq:       seq,
	}, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	defer metrics.ObserveStore(backend, "delete_session", time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, turnsKey(sessionID), seqKey(sessionID))
		pipe.SRem(ctx, sessionsKey, string(sessionID))
		return nil
	})
	return domain.NewStorageError(backend, "delete_session", err)
}

func (s *Store) ClearAll(ctx context.Context) error {
	defer metrics.ObserveStore(backend, "clear_all", time.Now())

	ids, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return domain.NewStorageError(backend, "clear_all", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, turnsKey(domain.SessionID(id)), seqKey(domain.SessionID(id)))
		}
		pipe.Del(ctx, sessionsKey)
		return nil
	})
	return domain.NewStorageError(backend, "clear_all", err)
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return domain.NewStorageError(backend, "ping", s.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ domain.TurnStore = (*Store)(nil)
