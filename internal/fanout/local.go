package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const localQueueSize = 256

// LocalBus is an in-process Publisher and Source for single-instance
// deployments and tests.
type LocalBus struct {
	mu   sync.Mutex
	seq  int64
	subs map[uuid.UUID]map[*localChannel]struct{}
}

// NewLocalBus returns an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[uuid.UUID]map[*localChannel]struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, u Update) error {
	b.mu.Lock()
	b.seq++
	u.Seq = b.seq
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	targets := make([]*localChannel, 0, len(b.subs[u.SessionID]))
	for c := range b.subs[u.SessionID] {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	for _, c := range targets {
		if err := c.push(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (b *LocalBus) Open(_ context.Context, sessionID uuid.UUID, deliver func(Update)) (Channel, error) {
	c := &localChannel{
		bus:     b,
		session: sessionID,
		queue:   make(chan Update, localQueueSize),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*localChannel]struct{})
	}
	b.subs[sessionID][c] = struct{}{}
	b.mu.Unlock()

	go c.loop(deliver)
	return c, nil
}

// subscribers reports open channels for a session.
func (b *LocalBus) subscribers(sessionID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

func (b *LocalBus) remove(c *localChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[c.session], c)
	if len(b.subs[c.session]) == 0 {
		delete(b.subs, c.session)
	}
}

type localChannel struct {
	bus     *LocalBus
	session uuid.UUID
	queue   chan Update
	done    chan struct{}
	once    sync.Once
}

func (c *localChannel) push(ctx context.Context, u Update) error {
	select {
	case c.queue <- u:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *localChannel) loop(deliver func(Update)) {
	for {
		select {
		case <-c.done:
			return
		case u := <-c.queue:
			deliver(u)
		}
	}
}

func (c *localChannel) Ping(context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

func (c *localChannel) Done() <-chan struct{} { return c.done }

func (c *localChannel) Close() error {
	c.once.Do(func() {
		c.bus.remove(c)
		close(c.done)
	})
	return nil
}
