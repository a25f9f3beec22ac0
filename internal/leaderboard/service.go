package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// Entry is one ranked row sent to clients.
type Entry struct {
	Rank          int      `json:"rank"`
	ParticipantID string   `json:"participantId"`
	DisplayName   string   `json:"displayName"`
	Score         int      `json:"score"`
	Streak        int      `json:"streak,omitempty"`
	Badges        []string `json:"badges,omitempty"`
}

// Where a leaderboard was read from.
const (
	SourceCache = "redis"
	SourceStore = "store"
)

type participantLister interface {
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]quiz.Participant, error)
}

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	EntryTTL       time.Duration
	RedisKeyPrefix string
}

// Service keeps a per-session sorted set of participant scores in Redis.
// The store stays authoritative: scores are only ever raised to the value the
// store committed, and reads fall back to the store when the cache is empty.
type Service struct {
	redis    *redis.Client
	store    participantLister
	logger   zerolog.Logger
	topN     int
	entryTTL time.Duration
	prefix   string
}

// NewService constructs a leaderboard service. A nil client serves every
// read from the store.
func NewService(redis *redis.Client, store participantLister, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 50
	}
	ttl := opts.EntryTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "quizlive:lb"
	}
	return &Service{
		redis:    redis,
		store:    store,
		logger:   logger.With().Str("component", "leaderboard").Logger(),
		topN:     topN,
		entryTTL: ttl,
		prefix:   prefix,
	}
}

// Record stores the participant's committed score. ZADD GT keeps the cache
// monotonic when two answers for one participant land out of order.
func (s *Service) Record(ctx context.Context, p quiz.Participant) error {
	if s.redis == nil {
		return nil
	}
	zKey := s.leaderboardKey(p.SessionID)
	metaKey := s.metaKey(p.SessionID)

	pipe := s.redis.TxPipeline()
	pipe.ZAddGT(ctx, zKey, redis.Z{Score: float64(p.Score), Member: p.ID.String()})
	pipe.HSet(ctx, metaKey, p.ID.String(), p.DisplayName)
	pipe.Expire(ctx, zKey, s.entryTTL)
	pipe.Expire(ctx, metaKey, s.entryTTL)
	pipe.SAdd(ctx, s.activeKey(), p.SessionID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboard %s: %w", p.SessionID, err)
	}
	return nil
}

// Enroll adds a joined participant to the cached board without touching an
// existing score, so participants who have not answered yet still rank.
func (s *Service) Enroll(ctx context.Context, p quiz.Participant) error {
	if s.redis == nil {
		return nil
	}
	zKey := s.leaderboardKey(p.SessionID)
	metaKey := s.metaKey(p.SessionID)

	pipe := s.redis.TxPipeline()
	pipe.ZAddNX(ctx, zKey, redis.Z{Score: float64(p.Score), Member: p.ID.String()})
	pipe.HSetNX(ctx, metaKey, p.ID.String(), p.DisplayName)
	pipe.Expire(ctx, zKey, s.entryTTL)
	pipe.Expire(ctx, metaKey, s.entryTTL)
	pipe.SAdd(ctx, s.activeKey(), p.SessionID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enroll in leaderboard %s: %w", p.SessionID, err)
	}
	return nil
}

// Top returns up to limit entries, highest score first.
func (s *Service) Top(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, string, error) {
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	if s.redis != nil {
		entries, err := s.fromCache(ctx, sessionID, limit)
		if err == nil && len(entries) > 0 {
			return entries, SourceCache, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("redis leaderboard fetch failed")
		}
	}

	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("list participants: %w", err)
	}
	if s.redis != nil && len(participants) > 0 {
		if err := s.seed(ctx, sessionID, participants); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("leaderboard backfill failed")
		}
	}
	return fromParticipants(participants, limit), SourceStore, nil
}

func (s *Service) fromCache(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, error) {
	results, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, z := range results {
		ids[i], _ = z.Member.(string)
	}
	names, err := s.redis.HMGet(ctx, s.metaKey(sessionID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard names: %w", err)
	}

	entries := make([]Entry, len(results))
	for i, z := range results {
		name, _ := names[i].(string)
		entries[i] = Entry{
			Rank:          i + 1,
			ParticipantID: ids[i],
			DisplayName:   name,
			Score:         int(z.Score),
		}
	}
	return entries, nil
}

// seed writes every participant's stored score into the cache.
func (s *Service) seed(ctx context.Context, sessionID uuid.UUID, participants []quiz.Participant) error {
	zKey := s.leaderboardKey(sessionID)
	metaKey := s.metaKey(sessionID)

	members := make([]redis.Z, len(participants))
	names := make(map[string]any, len(participants))
	for i, p := range participants {
		members[i] = redis.Z{Score: float64(p.Score), Member: p.ID.String()}
		names[p.ID.String()] = p.DisplayName
	}

	pipe := s.redis.TxPipeline()
	pipe.ZAddGT(ctx, zKey, members...)
	pipe.HSet(ctx, metaKey, names)
	pipe.Expire(ctx, zKey, s.entryTTL)
	pipe.Expire(ctx, metaKey, s.entryTTL)
	pipe.SAdd(ctx, s.activeKey(), sessionID.String())
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Service) leaderboardKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID.String())
}

func (s *Service) metaKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:names", s.prefix, sessionID.String())
}

func (s *Service) activeKey() string {
	return s.prefix + ":active"
}
