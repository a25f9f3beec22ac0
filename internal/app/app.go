package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-live/internal/config"
	"github.com/gokatarajesh/quiz-live/internal/db/memory"
	"github.com/gokatarajesh/quiz-live/internal/db/repository"
	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/leaderboard"
	"github.com/gokatarajesh/quiz-live/internal/logging"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz/scoring"
	"github.com/gokatarajesh/quiz-live/internal/server"
	"github.com/gokatarajesh/quiz-live/internal/session"
	ws "github.com/gokatarajesh/quiz-live/pkg/http/ws"
)

// Application aggregates shared infrastructure (store, cache, sync, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	sync       *fanout.Manager
	pgSync     *fanout.PGSource
	prefetcher *question.Prefetcher
	reconciler *leaderboard.ReconcileWorker
}

// New bootstraps the logger, store, Redis, sync layer and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("sync", cfg.Sync.Source).
		Msg("starting application bootstrap")

	a := &Application{cfg: cfg, logger: logger}

	var store session.Store
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		store = repository.NewStore(pool)
	default:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		store = memory.New()
	}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	}

	source, publisher, err := a.syncBackend(logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.sync = fanout.NewManager(source, fanout.Config{
		HeartbeatInterval: cfg.Sync.HeartbeatInterval,
		GracePeriod:       cfg.Sync.GracePeriod,
		ConnectTimeout:    cfg.Sync.ConnectTimeout,
		Backoff: fanout.BackoffConfig{
			Base:             cfg.Sync.BackoffBase,
			ExponentCap:      cfg.Sync.BackoffExponentCap,
			MaxAttempts:      cfg.Sync.BackoffMaxAttempts,
			ExtendedInterval: cfg.Sync.BackoffExtended,
		},
	}, logger)

	var questionCache question.ListCache
	var locker session.Locker = session.NewLocalLocker()
	if a.redis != nil {
		questionCache = question.NewCache(a.redis, cfg.Runtime.QuestionCacheTTL)
		locker = session.NewRedisLocker(a.redis, cfg.Runtime.LockTTL, logger)
	}
	catalog := question.NewService(store, questionCache, logger)
	a.prefetcher = question.NewPrefetcher(catalog, logger, cfg.Runtime.PrefetchTimeout)

	board := leaderboard.NewService(a.redis, store, logger, leaderboard.ServiceOptions{
		TopN:     cfg.Leaderboard.TopN,
		EntryTTL: cfg.Leaderboard.EntryTTL,
	})
	a.reconciler = leaderboard.NewReconcileWorker(board, cfg.Leaderboard.ReconcileInterval, logger)

	sessionSvc := session.NewService(store, publisher, locker, catalog, a.prefetcher, board, session.Config{
		WriteTimeout: cfg.Runtime.WriteTimeout,
		LockWait:     cfg.Runtime.LockWait,
	}, logger)
	answerSvc := session.NewAnswerService(store, catalog, scoring.NewEngine(scoring.DefaultScoringConfig()), board, publisher, cfg.Runtime.WriteTimeout, logger)
	reader := session.NewReader(store, catalog, logger)

	hub := ws.NewHub(ws.Limits{
		MaxConnections:            cfg.Capacity.MaxConnections,
		MaxParticipantsPerSession: cfg.Capacity.MaxParticipantsPerSession,
	}, logger)
	wsHandler := session.NewHandler(sessionSvc, answerSvc, reader, hub, a.sync, session.RateLimit{
		EventsPerSecond: cfg.Capacity.EventsPerSecond,
		Burst:           cfg.Capacity.EventBurst,
	}, logger)
	sessionHTTP := session.NewHTTPHandlers(sessionSvc, reader, a.sync, logger)
	lbHTTP := leaderboard.NewHTTPHandler(board, logger)

	deps := map[string]server.Pinger{"store": store}
	if a.redis != nil {
		client := a.redis
		deps["redis"] = server.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	a.http = server.NewHTTPServer(cfg, logger, server.Routes{
		WebSocket:    wsHandler.HandleWebSocket,
		Leaderboard:  lbHTTP.HandleGet,
		Register:     sessionHTTP.Register,
		Stats:        hub.Stats,
		Sync:         a.sync,
		Dependencies: deps,
	})
	return a, nil
}

func (a *Application) syncBackend(logger zerolog.Logger) (fanout.Source, fanout.Publisher, error) {
	switch a.cfg.Sync.Source {
	case config.SyncRedis:
		if a.redis == nil {
			return nil, nil, errors.New("redis sync source requires REDIS_ADDR")
		}
		bus := fanout.NewRedisBus(a.redis, a.cfg.Sync.ChannelPrefix, logger)
		return bus, bus, nil
	case config.SyncPostgres:
		if a.pool == nil {
			return nil, nil, errors.New("postgres sync source requires the postgres store")
		}
		a.pgSync = fanout.NewPGSource(a.pool, logger)
		return a.pgSync, fanout.NewPGPublisher(a.pool), nil
	default:
		bus := fanout.NewLocalBus()
		return bus, bus, nil
	}
}

// Run serves HTTP and background workers until a termination signal or ctx
// cancellation, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.sync.Run(gctx) })
	g.Go(func() error { return watchSuspend(gctx, a.sync, a.logger) })
	g.Go(func() error { return a.prefetcher.Run(gctx) })
	g.Go(func() error { return a.reconciler.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("http shutdown error")
		}
		return nil
	})

	err := g.Wait()
	a.close()
	a.logger.Info().Msg("shutdown complete")
	return err
}

func (a *Application) close() {
	if a.pgSync != nil {
		_ = a.pgSync.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
}
