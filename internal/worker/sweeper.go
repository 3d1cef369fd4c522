package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
)

const sweepBatchSize = 100

type ExpiredCartStore interface {
	DeleteExpiredCarts(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Sweeper removes anonymous carts whose expiry has passed.
type Sweeper struct {
	carts    ExpiredCartStore
	cache    cache.LinesCache
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewSweeper(carts ExpiredCartStore, c cache.LinesCache, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{carts: carts, cache: c, interval: interval, log: log, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep deletes expired carts in batches until none remain and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	total := 0
	for ctx.Err() == nil {
		ids, err := s.carts.DeleteExpiredCarts(ctx, now, sweepBatchSize)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to delete expired carts", "err", err)
			break
		}
		if len(ids) > 0 {
			if err := s.cache.Delete(ctx, ids...); err != nil {
				s.log.WarnContext(ctx, "failed to invalidate expired carts", "count", len(ids), "err", err)
			}
		}
		total += len(ids)
		if len(ids) < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		s.log.InfoContext(ctx, "expired carts swept", "count", total)
	}
	return total
}
