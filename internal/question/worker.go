package question

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const prefetchQueueSize = 64

// Prefetcher warms the question cache for sessions about to go live, so the
// first burst of answers is validated from cache.
type Prefetcher struct {
	service *Service
	queue   chan uuid.UUID
	logger  zerolog.Logger
	timeout time.Duration
}

func NewPrefetcher(service *Service, logger zerolog.Logger, timeout time.Duration) *Prefetcher {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Prefetcher{
		service: service,
		queue:   make(chan uuid.UUID, prefetchQueueSize),
		logger:  logger.With().Str("component", "question_prefetcher").Logger(),
		timeout: timeout,
	}
}

// Enqueue schedules a warm-up. It never blocks; requests beyond the queue
// are dropped since the catalog fills itself on demand anyway.
func (w *Prefetcher) Enqueue(sessionID uuid.UUID) {
	select {
	case w.queue <- sessionID:
	default:
		w.logger.Debug().Str("session_id", sessionID.String()).Msg("prefetch queue full, skipping")
	}
}

// Run drains the queue until ctx is done.
func (w *Prefetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("question prefetcher stopping")
			return nil
		case id := <-w.queue:
			w.handle(ctx, id)
		}
	}
}

func (w *Prefetcher) handle(ctx context.Context, sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.service.List(ctx, sessionID); err != nil {
		w.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("prefetch failed")
	}
}
