package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-live/internal/metrics"
)

// Config tunes channel liveness and teardown.
type Config struct {
	HeartbeatInterval time.Duration
	GracePeriod       time.Duration
	ConnectTimeout    time.Duration
	Backoff           BackoffConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: time.Minute,
		GracePeriod:       30 * time.Second,
		ConnectTimeout:    15 * time.Second,
		Backoff:           DefaultBackoffConfig(),
	}
}

// staleFactor heartbeat intervals without traffic mark a channel stale.
const staleFactor = 3

// Status is a point-in-time view of one session's upstream channel.
type Status struct {
	Connected bool      `json:"connected"`
	Paused    bool      `json:"paused"`
	Listeners int       `json:"listeners"`
	Attempts  int       `json:"attempts"`
	LastSeen  time.Time `json:"lastSeen"`
}

type sessionState struct {
	id uuid.UUID

	mu         sync.Mutex
	listeners  map[uint64]Listener
	nextID     uint64
	channel    Channel
	connected  bool
	running    bool
	lastSeen   time.Time
	attempts   int
	graceTimer *time.Timer
	graceGen   uint64
	cancel     context.CancelFunc
	closed     bool

	// fanMu keeps delivery to listeners in channel order.
	fanMu sync.Mutex
}

// Manager keeps at most one upstream channel per session on this instance
// and multiplexes it to every local listener. Lock order is Manager.mu,
// then sessionState.mu.
type Manager struct {
	src    Source
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState
	paused   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a Manager reading from src.
func NewManager(src Source, cfg Config, logger zerolog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = def.Backoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		src:      src,
		cfg:      cfg,
		logger:   logger.With().Str("component", "session_sync").Logger(),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*sessionState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe registers l for updates on sessionID and returns a function that
// removes it. It never blocks on the upstream channel; the first subscriber
// starts an asynchronous connect. The returned function is idempotent.
func (m *Manager) Subscribe(sessionID uuid.UUID, l Listener) func() {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if !ok {
		st = &sessionState{id: sessionID, listeners: make(map[uint64]Listener)}
		m.sessions[sessionID] = st
	}
	st.mu.Lock()
	m.mu.Unlock()

	st.nextID++
	id := st.nextID
	st.listeners[id] = l
	if st.graceTimer != nil {
		st.graceTimer.Stop()
		st.graceTimer = nil
		st.graceGen++
	}

	var runCtx context.Context
	start := !st.running && !st.closed
	if start {
		st.running = true
		runCtx, st.cancel = context.WithCancel(m.ctx)
	}
	st.mu.Unlock()

	if start {
		m.wg.Add(1)
		go m.run(runCtx, st)
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(st, id) })
	}
}

func (m *Manager) unsubscribe(st *sessionState, id uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.listeners, id)
	if len(st.listeners) > 0 || st.closed {
		return
	}
	st.graceGen++
	gen := st.graceGen
	st.graceTimer = time.AfterFunc(m.cfg.GracePeriod, func() { m.teardown(st, gen) })
}

// teardown closes the session's channel unless someone resubscribed.
func (m *Manager) teardown(st *sessionState, gen uint64) {
	m.mu.Lock()
	st.mu.Lock()
	if st.closed || len(st.listeners) > 0 || st.graceGen != gen {
		st.mu.Unlock()
		m.mu.Unlock()
		return
	}
	st.closed = true
	if m.sessions[st.id] == st {
		delete(m.sessions, st.id)
	}
	ch, wasConnected, cancel := st.channel, st.connected, st.cancel
	st.channel, st.connected, st.graceTimer = nil, false, nil
	st.mu.Unlock()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if wasConnected {
		metrics.UpstreamChannels.Dec()
	}
	m.logger.Debug().Str("session_id", st.id.String()).Msg("upstream channel released")
}

// run owns the session's channel for its whole life: connect, wait for a
// drop, reconnect, until ctx is canceled by teardown or Close.
func (m *Manager) run(ctx context.Context, st *sessionState) {
	defer m.wg.Done()
	for {
		ch, err := m.connect(ctx, st)
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ch.Done():
			m.dropped(st, ch)
			m.logger.Warn().Str("session_id", st.id.String()).Msg("upstream channel dropped, reconnecting")
		}
	}
}

func (m *Manager) connect(ctx context.Context, st *sessionState) (Channel, error) {
	var ch Channel
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		openCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
		opened, err := m.src.Open(openCtx, st.id, func(u Update) { m.deliver(st, u) })
		if err != nil {
			return err
		}

		st.mu.Lock()
		if st.closed || ctx.Err() != nil {
			st.mu.Unlock()
			_ = opened.Close()
			return backoff.Permanent(context.Canceled)
		}
		st.channel = opened
		st.connected = true
		st.attempts = 0
		st.lastSeen = m.now()
		st.mu.Unlock()

		metrics.UpstreamChannels.Inc()
		ch = opened
		return nil
	}
	notify := func(err error, wait time.Duration) {
		st.mu.Lock()
		st.attempts++
		attempt := st.attempts
		st.mu.Unlock()
		metrics.UpstreamReconnects.Inc()
		m.logger.Warn().Err(err).
			Str("session_id", st.id.String()).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("upstream channel open failed")
	}

	b := backoff.WithContext(newReconnectBackOff(m.cfg.Backoff), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return ch, nil
}

func (m *Manager) dropped(st *sessionState, ch Channel) {
	st.mu.Lock()
	wasCurrent := st.channel == ch
	if wasCurrent {
		st.channel = nil
		st.connected = false
	}
	st.mu.Unlock()
	if wasCurrent {
		metrics.UpstreamChannels.Dec()
	}
	_ = ch.Close()
}

func (m *Manager) deliver(st *sessionState, u Update) {
	st.fanMu.Lock()
	defer st.fanMu.Unlock()

	st.mu.Lock()
	st.lastSeen = m.now()
	listeners := make([]Listener, 0, len(st.listeners))
	for _, l := range st.listeners {
		listeners = append(listeners, l)
	}
	st.mu.Unlock()

	for _, l := range listeners {
		m.call(l, u)
	}
	metrics.UpdatesFannedOut.WithLabelValues(string(u.Kind)).Inc()
}

func (m *Manager) call(l Listener, u Update) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("session_id", u.SessionID.String()).Msg("listener panicked")
		}
	}()
	l(u)
}

// Run drives the heartbeat until ctx is done, then closes every channel.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// Pause suspends heartbeats, e.g. while the host process is backgrounded.
func (m *Manager) Pause() {
	if !m.paused.Swap(true) {
		m.logger.Info().Msg("heartbeat paused")
	}
}

// Resume re-enables heartbeats and immediately re-validates every channel.
func (m *Manager) Resume(ctx context.Context) {
	if m.paused.Swap(false) {
		m.logger.Info().Msg("heartbeat resumed")
		m.sweep(ctx)
	}
}

// Paused reports whether heartbeats are suspended.
func (m *Manager) Paused() bool { return m.paused.Load() }

func (m *Manager) sweep(ctx context.Context) {
	if m.paused.Load() {
		return
	}
	m.mu.Lock()
	states := make([]*sessionState, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(16)
	for _, st := range states {
		g.Go(func() error {
			m.check(ctx, st)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) check(ctx context.Context, st *sessionState) {
	st.mu.Lock()
	ch, lastSeen := st.channel, st.lastSeen
	st.mu.Unlock()
	if ch == nil {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err := ch.Ping(pingCtx)
	cancel()
	if err == nil {
		st.mu.Lock()
		if st.channel == ch {
			st.lastSeen = m.now()
		}
		st.mu.Unlock()
		return
	}

	if m.now().Sub(lastSeen) > staleFactor*m.cfg.HeartbeatInterval {
		m.logger.Warn().Err(err).
			Str("session_id", st.id.String()).
			Time("last_seen", lastSeen).
			Msg("upstream channel stale")
		// Closing signals Done; run reconnects.
		_ = ch.Close()
	}
}

// Status reports the session's channel, or false if nothing is subscribed.
func (m *Manager) Status(sessionID uuid.UUID) (Status, bool) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Status{
		Connected: st.connected,
		Paused:    m.paused.Load(),
		Listeners: len(st.listeners),
		Attempts:  st.attempts,
		LastSeen:  st.lastSeen,
	}, true
}

// Close tears down every channel and waits for connect loops to exit.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	states := m.sessions
	m.sessions = make(map[uuid.UUID]*sessionState)
	m.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		st.closed = true
		if st.graceTimer != nil {
			st.graceTimer.Stop()
		}
		ch, wasConnected := st.channel, st.connected
		st.channel, st.connected = nil, false
		st.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		if wasConnected {
			metrics.UpstreamChannels.Dec()
		}
	}
	m.wg.Wait()
}

// ErrClosed is returned by sources after Close.
var ErrClosed = errors.New("fanout: channel closed")
