package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/verdantlabs/greencoach/internal/store"
)

// Scheduler runs the report retention pruner on a cron schedule. A Redis
// lock keeps multiple instances from pruning in the same window.
type Scheduler struct {
	store         *store.Store
	cache         *store.StatusCache
	schedule      *cronexpr.Expression
	retentionDays int
	logger        *log.Logger
}

func NewScheduler(st *store.Store, cache *store.StatusCache, spec string, retentionDays int) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		store:         st,
		cache:         cache,
		schedule:      expr,
		retentionDays: retentionDays,
		logger:        log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags),
	}, nil
}

// Start blocks until ctx is cancelled, checking the schedule once a minute.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Printf("retention pruner started (retention %d days)", s.retentionDays)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("retention pruner stopped")
			return
		case now := <-ticker.C:
			if s.isDue(last, now) {
				s.prune(ctx, now)
			}
			last = now
		}
	}
}

func (s *Scheduler) isDue(last, now time.Time) bool {
	next := s.schedule.Next(last)
	return !next.IsZero() && !next.After(now)
}

func (s *Scheduler) prune(ctx context.Context, now time.Time) {
	if s.cache != nil {
		ok, err := s.cache.AcquireLock(ctx, "prune_reports", 10*time.Minute)
		if err != nil {
			s.logger.Printf("Warning: prune lock error: %v", err)
			return
		}
		if !ok {
			return
		}
	}
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	n, err := s.store.PruneReports(ctx, cutoff)
	if err != nil {
		s.logger.Printf("Warning: prune failed: %v", err)
		return
	}
	s.logger.Printf("pruned %d reports older than %s", n, cutoff.Format("2006-01-02"))
}
