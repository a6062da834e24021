// Package jobs holds the background maintenance loops.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/vagn/internal/repository"
)

// Sweeper garbage-collects anonymous carts whose expiry passed. User carts
// never expire; guests who walked away stop paying for their rows here.
type Sweeper struct {
	repo     repository.Querier
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(repo repository.Querier, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps on a ticker until the context is cancelled. Call in a
// goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("cart sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cart sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired anonymous carts once. A failed sweep is logged
// and retried on the next tick; nothing depends on it succeeding promptly.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	deleted, err := s.repo.DeleteExpiredCarts(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to sweep expired carts", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.logger.Info("swept expired carts", slog.Int64("deleted", deleted))
	}
}
