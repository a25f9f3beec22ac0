package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// Locker serializes host actions per session. Lock waits until ctx is done and
// then fails with quiz.ErrHostActionBusy.
type Locker interface {
	Lock(ctx context.Context, sessionID uuid.UUID) (unlock func(), err error)
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is an in-process per-session lock. Slots are dropped once no
// caller holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*localSlot
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[uuid.UUID]*localSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[sessionID]
	if !ok {
		slot = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[sessionID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, slot)
		return nil, quiz.ErrHostActionBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			l.release(sessionID, slot)
		})
	}, nil
}

func (l *LocalLocker) release(sessionID uuid.UUID, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, sessionID)
	}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker extends the local lock across instances with a SET NX key
// holding an owner token. The key expires after ttl so a crashed holder
// cannot wedge a session.
type RedisLocker struct {
	local  *LocalLocker
	redis  *redis.Client
	ttl    time.Duration
	poll   time.Duration
	prefix string
	logger zerolog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		local:  NewLocalLocker(),
		redis:  client,
		ttl:    ttl,
		poll:   25 * time.Millisecond,
		prefix: "quizlive:lock:",
		logger: logger.With().Str("component", "session_lock").Logger(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	key := l.prefix + sessionID.String()
	token := uuid.New().String()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		acquired, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		switch {
		case err == nil && acquired:
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := l.redis.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
					l.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("release lock failed")
				}
				unlockLocal()
			}, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled):
			unlockLocal()
			return nil, quiz.Transient("acquire session lock", fmt.Errorf("setnx %s: %w", key, err))
		}

		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, quiz.ErrHostActionBusy
		case <-ticker.C:
		}
	}
}
