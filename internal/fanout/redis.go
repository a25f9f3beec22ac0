package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultRedisPrefix = "quizlive:session:"
	seqTTL             = 24 * time.Hour
)

// RedisBus publishes updates over Redis Pub/Sub, one channel per session,
// so every API instance sees every change.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisBus creates a Pub/Sub backed bus.
func NewRedisBus(client *redis.Client, prefix string, logger zerolog.Logger) *RedisBus {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis_sync").Logger(),
	}
}

func (b *RedisBus) channel(sessionID uuid.UUID) string {
	return ChannelName(b.prefix, sessionID)
}

// Publish stamps u with a per-session sequence number and publishes it.
func (b *RedisBus) Publish(ctx context.Context, u Update) error {
	key := b.channel(u.SessionID) + ":seq"
	var incr *redis.IntCmd
	if _, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, seqTTL)
		return nil
	}); err != nil {
		return fmt.Errorf("redis sync: next seq: %w", err)
	}
	u.Seq = incr.Val()
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("redis sync: encode: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(u.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("redis sync: publish: %w", err)
	}
	return nil
}

// Open subscribes to the session channel and waits for the subscription
// to be confirmed. ctx bounds the handshake only.
func (b *RedisBus) Open(ctx context.Context, sessionID uuid.UUID, deliver func(Update)) (Channel, error) {
	sub := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis sync: subscribe: %w", err)
	}

	c := &redisChannel{sub: sub, done: make(chan struct{})}
	go c.loop(deliver, b.logger)
	return c, nil
}

type redisChannel struct {
	sub  *redis.PubSub
	done chan struct{}
	once sync.Once
}

func (c *redisChannel) loop(deliver func(Update), logger zerolog.Logger) {
	defer c.markDone()
	for msg := range c.sub.Channel() {
		u, err := decodeUpdate([]byte(msg.Payload))
		if err != nil {
			logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed update")
			continue
		}
		deliver(u)
	}
}

func (c *redisChannel) markDone() {
	c.once.Do(func() { close(c.done) })
}

func (c *redisChannel) Ping(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.sub.Ping(ctx)
}

func (c *redisChannel) Done() <-chan struct{} { return c.done }

func (c *redisChannel) Close() error {
	err := c.sub.Close()
	c.markDone()
	return err
}
