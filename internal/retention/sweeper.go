// Package retention removes ended parties once they have been over for a
// configured time. Active parties are never touched.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger deletes parties that ended before cutoff and returns their ids.
type Purger interface {
	PurgeEnded(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Sweeper periodically purges ended parties.
type Sweeper struct {
	store    Purger
	after    time.Duration
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper that purges parties ended more than after ago.
// It checks every after/4, but at least once a minute.
func NewSweeper(store Purger, after time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	interval := after / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		after:    after,
		interval: interval,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce purges once and returns the ids removed.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	ids, err := s.store.PurgeEnded(ctx, s.now().Add(-s.after))
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.log.Info("ended parties purged", zap.Int("count", len(ids)), zap.Strings("session_ids", ids))
	}
	return ids, nil
}
