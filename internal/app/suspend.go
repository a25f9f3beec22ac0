package app

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

type suspender interface {
	Pause()
	Resume(ctx context.Context)
}

// watchSuspend pauses upstream heartbeats on the suspend signal and resumes
// them on the resume signal until ctx is done.
func watchSuspend(ctx context.Context, s suspender, logger zerolog.Logger) error {
	if suspendSignal == nil {
		<-ctx.Done()
		return nil
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, suspendSignal, resumeSignal)
	defer signal.Stop(sigs)
	relaySuspend(ctx, sigs, s, logger)
	return nil
}

func relaySuspend(ctx context.Context, sigs <-chan os.Signal, s suspender, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			switch sig {
			case suspendSignal:
				logger.Info().Str("signal", sig.String()).Msg("suspending sync heartbeats")
				s.Pause()
			case resumeSignal:
				logger.Info().Str("signal", sig.String()).Msg("resuming sync heartbeats")
				s.Resume(ctx)
			}
		}
	}
}
