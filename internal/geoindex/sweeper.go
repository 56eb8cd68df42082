package geoindex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goride/dispatch/pkg/logger"
)

// Sweeper periodically purges stale entries from the secondary geo indexes.
type Sweeper struct {
	index    *Index
	interval time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(index *Index, interval time.Duration) *Sweeper {
	return &Sweeper{index: index, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.index.Sweep(ctx, now)
			if err != nil {
				logger.WarnContext(ctx, "geo sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("geo sweep removed stale entries", zap.Int("removed", removed))
			}
		}
	}
}
