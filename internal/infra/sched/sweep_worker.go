package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper drops state older than a cutoff and reports how much it removed.
type Sweeper interface {
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// SweepWorker periodically evicts entries older than ttl.
type SweepWorker struct {
	interval time.Duration
	ttl      time.Duration
	target   Sweeper
	now      func() time.Time
	log      *zerolog.Logger
}

func NewSweepWorker(interval, ttl time.Duration, target Sweeper, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{interval: interval, ttl: ttl, target: target, now: time.Now, log: &l}
}

// Run blocks until ctx is done.
func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("ttl", w.ttl).Msg("starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := w.target.Sweep(runCtx, w.now().Add(-w.ttl))
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("expired entries removed")
	}
}
