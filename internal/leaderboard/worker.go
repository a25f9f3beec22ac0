package leaderboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcileWorker periodically rewrites cached leaderboards from the store,
// repairing entries lost when a Redis write failed after an answer committed.
type ReconcileWorker struct {
	svc      *Service
	logger   zerolog.Logger
	interval time.Duration
}

func NewReconcileWorker(svc *Service, interval time.Duration, logger zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileWorker{
		svc:      svc,
		logger:   logger.With().Str("component", "leaderboard_reconcile_worker").Logger(),
		interval: interval,
	}
}

// Run blocks until context cancellation.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	if w.svc == nil || w.svc.redis == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ReconcileWorker) tick(ctx context.Context) {
	ids, err := w.svc.redis.SMembers(ctx, w.svc.activeKey()).Result()
	if err != nil {
		w.logger.Warn().Err(err).Msg("list active leaderboards failed")
		return
	}
	for _, raw := range ids {
		sessionID, err := uuid.Parse(raw)
		if err != nil {
			_ = w.svc.redis.SRem(ctx, w.svc.activeKey(), raw).Err()
			continue
		}
		if err := w.reconcile(ctx, sessionID); err != nil {
			w.logger.Warn().Err(err).Str("session_id", raw).Msg("reconcile failed")
		}
	}
}

func (w *ReconcileWorker) reconcile(ctx context.Context, sessionID uuid.UUID) error {
	n, err := w.svc.redis.Exists(ctx, w.svc.leaderboardKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		// Expired; stop tracking it.
		return w.svc.redis.SRem(ctx, w.svc.activeKey(), sessionID.String()).Err()
	}

	participants, err := w.svc.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		return nil
	}
	if err := w.svc.seed(ctx, sessionID, participants); err != nil {
		return err
	}
	w.logger.Debug().
		Str("session_id", sessionID.String()).
		Int("entries", len(participants)).
		Msg("leaderboard reconciled")
	return nil
}
