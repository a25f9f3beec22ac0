package question

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

const defaultCacheTTL = 30 * time.Minute

// Cache provides Redis-backed caching of a session's question list so answer
// validation does not hit Postgres on every submission.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ListCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(sessionID uuid.UUID) string {
	return "quizlive:questions:" + sessionID.String()
}

func (c *Cache) Get(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var qs []quiz.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (c *Cache) Set(ctx context.Context, sessionID uuid.UUID, qs []quiz.Question) error {
	data, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID), data, c.ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}

// NopCache never caches. Used when Redis is not configured.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) ([]quiz.Question, error) { return nil, nil }
func (NopCache) Set(context.Context, uuid.UUID, []quiz.Question) error   { return nil }
func (NopCache) Delete(context.Context, uuid.UUID) error                 { return nil }
