package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// pgChannelPrefix must match quizlive_notify in the migrations.
const pgChannelPrefix = "session_"

// listenConn is the part of *pgx.Conn the listener drives.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// PGSource listens for the change notifications emitted by the session,
// question and participant triggers. Every session shares one dedicated
// connection outside the store pool, so live sessions never take pooled
// connections away from queries.
type PGSource struct {
	dial   func(ctx context.Context) (listenConn, error)
	logger zerolog.Logger

	mu     sync.Mutex
	cur    *pgListener
	closed bool
}

// NewPGSource dials its listening connection with the pool's settings.
func NewPGSource(pool *pgxpool.Pool, logger zerolog.Logger) *PGSource {
	connCfg := pool.Config().ConnConfig
	return newPGSource(func(ctx context.Context) (listenConn, error) {
		conn, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, logger)
}

func newPGSource(dial func(ctx context.Context) (listenConn, error), logger zerolog.Logger) *PGSource {
	return &PGSource{dial: dial, logger: logger.With().Str("component", "pg_sync").Logger()}
}

func (s *PGSource) Open(ctx context.Context, sessionID uuid.UUID, deliver func(Update)) (Channel, error) {
	l, err := s.listener(ctx)
	if err != nil {
		return nil, err
	}
	c, err := l.subscribe(ctx, ChannelName(pgChannelPrefix, sessionID), deliver)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// listener returns the live listener, dialing a new one after a drop.
func (s *PGSource) listener(ctx context.Context) (*pgListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.cur != nil && !s.cur.dead() {
		return s.cur, nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg sync: connect: %w", err)
	}
	s.cur = startListener(conn, s.logger)
	return s.cur, nil
}

// Close drops the listening connection. Every open channel reports Done.
func (s *PGSource) Close() error {
	s.mu.Lock()
	l := s.cur
	s.cur, s.closed = nil, true
	s.mu.Unlock()
	if l != nil {
		l.stop()
	}
	return nil
}

type pgCommand struct {
	ctx    context.Context
	run    func(ctx context.Context, conn listenConn) error
	result chan error
}

// pgListener owns one connection. Its loop goroutine is the only user of the
// connection and of subs; other goroutines hand it commands, interrupting
// WaitForNotification to get them run.
type pgListener struct {
	conn   listenConn
	logger zerolog.Logger
	cmds   chan pgCommand
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	interrupt context.CancelFunc

	subs map[string]map[*pgChannel]struct{}
}

func startListener(conn listenConn, logger zerolog.Logger) *pgListener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &pgListener{
		conn:   conn,
		logger: logger,
		cmds:   make(chan pgCommand, 16),
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[string]map[*pgChannel]struct{}),
	}
	go l.run(ctx)
	return l
}

func (l *pgListener) dead() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *pgListener) stop() {
	l.cancel()
	<-l.done
}

func (l *pgListener) run(ctx context.Context) {
	defer l.shutdown()
	for {
		waitCtx, cancel := context.WithCancel(ctx)
		l.mu.Lock()
		l.interrupt = cancel
		pending := len(l.cmds) > 0
		l.mu.Unlock()
		if pending {
			cancel()
		}

		n, err := l.conn.WaitForNotification(waitCtx)

		l.mu.Lock()
		l.interrupt = nil
		l.mu.Unlock()
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() == nil || l.conn.IsClosed() {
				l.logger.Warn().Err(err).Msg("notification wait failed")
				return
			}
			if !l.drain() {
				return
			}
			continue
		}
		l.dispatch(n)
	}
}

// drain runs queued commands. It reports false once the connection is gone.
func (l *pgListener) drain() bool {
	for {
		select {
		case cmd := <-l.cmds:
			err := cmd.run(cmd.ctx, l.conn)
			cmd.result <- err
			if err != nil && l.conn.IsClosed() {
				l.logger.Warn().Err(err).Msg("listening connection lost")
				return false
			}
		default:
			return true
		}
	}
}

func (l *pgListener) dispatch(n *pgconn.Notification) {
	set := l.subs[n.Channel]
	if len(set) == 0 {
		return
	}
	u, err := decodeUpdate([]byte(n.Payload))
	if err != nil {
		l.logger.Warn().Err(err).Str("channel", n.Channel).Msg("dropping malformed notification")
		return
	}
	for c := range set {
		c.deliver(u)
	}
}

// shutdown marks the listener dead before its channels, so a reopen
// triggered by a channel's Done always dials a fresh connection.
func (l *pgListener) shutdown() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = l.conn.Close(closeCtx)
	close(l.done)

	for _, set := range l.subs {
		for c := range set {
			c.markDone()
		}
	}
	l.subs = nil
}

// exec runs fn on the loop goroutine and waits for its result.
func (l *pgListener) exec(ctx context.Context, fn func(ctx context.Context, conn listenConn) error) error {
	cmd := pgCommand{ctx: ctx, run: fn, result: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	if l.interrupt != nil {
		l.interrupt()
	}
	l.mu.Unlock()

	select {
	case err := <-cmd.result:
		return err
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *pgListener) subscribe(ctx context.Context, channel string, deliver func(Update)) (*pgChannel, error) {
	c := &pgChannel{listener: l, name: channel, deliver: deliver, done: make(chan struct{})}
	err := l.exec(ctx, func(ctx context.Context, conn listenConn) error {
		set, listening := l.subs[channel]
		if !listening {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
				return fmt.Errorf("pg sync: listen: %w", err)
			}
			set = make(map[*pgChannel]struct{})
			l.subs[channel] = set
		}
		set[c] = struct{}{}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			// The command may still run after we gave up on it.
			go func() { _ = c.Close() }()
		}
		return nil, err
	}
	return c, nil
}

// remove runs on the loop goroutine. The last channel for a name UNLISTENs.
func (l *pgListener) remove(ctx context.Context, conn listenConn, c *pgChannel) error {
	set := l.subs[c.name]
	if _, ok := set[c]; !ok {
		return nil
	}
	delete(set, c)
	if len(set) > 0 {
		return nil
	}
	delete(l.subs, c.name)
	if _, err := conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{c.name}.Sanitize()); err != nil {
		return fmt.Errorf("pg sync: unlisten: %w", err)
	}
	return nil
}

type pgChannel struct {
	listener *pgListener
	name     string
	deliver  func(Update)
	done     chan struct{}
	once     sync.Once
}

func (c *pgChannel) markDone() { c.once.Do(func() { close(c.done) }) }

// Ping round-trips on the shared listening connection.
func (c *pgChannel) Ping(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.listener.exec(ctx, func(ctx context.Context, conn listenConn) error {
		return conn.Ping(ctx)
	})
}

func (c *pgChannel) Done() <-chan struct{} { return c.done }

// Close unregisters the channel. The connection stays up for other sessions.
func (c *pgChannel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.listener.exec(ctx, func(ctx context.Context, conn listenConn) error {
		return c.listener.remove(ctx, conn, c)
	})
	c.markDone()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGPublisher sends updates that have no backing row change through
// pg_notify. Durable changes are announced by triggers, so it ignores them.
type PGPublisher struct {
	db  execer
	now func() time.Time
}

func NewPGPublisher(db execer) *PGPublisher {
	return &PGPublisher{db: db, now: time.Now}
}

func (p *PGPublisher) Publish(ctx context.Context, u Update) error {
	if !u.Ephemeral {
		return nil
	}
	if u.At.IsZero() {
		u.At = p.now().UTC()
	}
	if u.Seq == 0 {
		u.Seq = u.At.UnixNano()
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("pg sync: encode: %w", err)
	}
	if _, err := p.db.Exec(ctx, "SELECT pg_notify($1, $2)", ChannelName(pgChannelPrefix, u.SessionID), string(payload)); err != nil {
		return fmt.Errorf("pg sync: notify: %w", err)
	}
	return nil
}
