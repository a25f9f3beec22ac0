package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Sync sources.
const (
	SyncLocal    = "local"
	SyncRedis    = "redis"
	SyncPostgres = "postgres"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-live"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Store       Store
	Sync        Sync
	Capacity    Capacity
	Runtime     Runtime
	Leaderboard Leaderboard
}

// Postgres captures connection info for the SQL database. Required when the
// store driver is postgres.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders a pgx connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Redis holds cache, lock and bus configuration. An empty address disables
// every Redis-backed component.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Store selects the persistence backend.
type Store struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

// Sync configures how session changes reach every instance.
type Sync struct {
	Source             string        `env:"SYNC_SOURCE" envDefault:"redis"`
	ChannelPrefix      string        `env:"SYNC_CHANNEL_PREFIX" envDefault:"quizlive:session:"`
	HeartbeatInterval  time.Duration `env:"SYNC_HEARTBEAT_INTERVAL" envDefault:"60s"`
	GracePeriod        time.Duration `env:"SYNC_GRACE_PERIOD" envDefault:"30s"`
	ConnectTimeout     time.Duration `env:"SYNC_CONNECT_TIMEOUT" envDefault:"15s"`
	BackoffBase        time.Duration `env:"SYNC_BACKOFF_BASE" envDefault:"1s"`
	BackoffExponentCap int           `env:"SYNC_BACKOFF_EXPONENT_CAP" envDefault:"5"`
	BackoffMaxAttempts int           `env:"SYNC_BACKOFF_MAX_ATTEMPTS" envDefault:"10"`
	BackoffExtended    time.Duration `env:"SYNC_BACKOFF_EXTENDED" envDefault:"60s"`
}

// Capacity bounds what one instance accepts.
type Capacity struct {
	MaxConnections            int     `env:"MAX_CONNECTIONS" envDefault:"10000"`
	MaxParticipantsPerSession int     `env:"MAX_PARTICIPANTS_PER_SESSION" envDefault:"500"`
	EventsPerSecond           float64 `env:"WS_EVENTS_PER_SECOND" envDefault:"10"`
	EventBurst                int     `env:"WS_EVENT_BURST" envDefault:"20"`
}

// Runtime groups timeouts for host actions and reads.
type Runtime struct {
	WriteTimeout     time.Duration `env:"STORE_WRITE_TIMEOUT" envDefault:"5s"`
	LockWait         time.Duration `env:"HOST_LOCK_WAIT" envDefault:"3s"`
	LockTTL          time.Duration `env:"HOST_LOCK_TTL" envDefault:"30s"`
	QuestionCacheTTL time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"30m"`
	PrefetchTimeout  time.Duration `env:"QUESTION_PREFETCH_TIMEOUT" envDefault:"4s"`
}

// Leaderboard governs the per-session score cache.
type Leaderboard struct {
	TopN              int           `env:"LEADERBOARD_TOP" envDefault:"50"`
	EntryTTL          time.Duration `env:"LEADERBOARD_TTL" envDefault:"24h"`
	ReconcileInterval time.Duration `env:"LEADERBOARD_RECONCILE_INTERVAL" envDefault:"5m"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c *App) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StorePostgres:
		for name, v := range map[string]string{
			"PG_HOST":     c.Postgres.Host,
			"PG_USER":     c.Postgres.User,
			"PG_PASSWORD": c.Postgres.Password,
			"PG_DATABASE": c.Postgres.Database,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%s is required when STORE_DRIVER=postgres", name))
			}
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Sync.Source {
	case SyncLocal:
	case SyncRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("REDIS_ADDR is required when SYNC_SOURCE=redis"))
		}
	case SyncPostgres:
		if c.Store.Driver != StorePostgres {
			errs = append(errs, errors.New("SYNC_SOURCE=postgres requires STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SYNC_SOURCE %q", c.Sync.Source))
	}

	if c.Sync.HeartbeatInterval <= 0 || c.Sync.GracePeriod < 0 || c.Sync.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("sync intervals must be positive"))
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMaxAttempts <= 0 || c.Sync.BackoffExtended <= 0 {
		errs = append(errs, errors.New("sync backoff settings must be positive"))
	}
	if c.Capacity.MaxConnections < 0 || c.Capacity.MaxParticipantsPerSession < 0 || c.Capacity.EventsPerSecond < 0 {
		errs = append(errs, errors.New("capacity limits must not be negative"))
	}
	if c.Runtime.WriteTimeout <= 0 || c.Runtime.LockWait <= 0 {
		errs = append(errs, errors.New("STORE_WRITE_TIMEOUT and HOST_LOCK_WAIT must be positive"))
	}
	return errors.Join(errs...)
}
