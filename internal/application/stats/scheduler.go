// Package stats implements the scheduled refresh runner: two cron-driven tasks that recompute tag cardinality and
// gen-source statistics on a fixed cadence.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
	"github.com/pixforge/genflow/internal/infrastructure/logger"
)

// Scheduler drives the tag-cardinality and gen-source refresh tasks on the
// configured cadence, each guarded by a task-level lock so overlapping runs
// never fire concurrently.
type Scheduler struct {
	repo   repository.StatsRepository
	cron   *cron.Cron
	logger *logger.Logger

	tagRefreshRunning int32
	genRefreshRunning int32
}

// NewScheduler builds a Scheduler on a UTC cron runner with seconds
// precision. cfg is not read here; the fixed-delay interval is the one
// passed to Start.
func NewScheduler(repo repository.StatsRepository, cfg config.StatsConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		repo:   repo,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		logger: log,
	}
}

// Start schedules both refresh tasks and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	schedule := cron.ConstantDelaySchedule{Delay: interval}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.runTagRefresh(ctx) }))
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.runGenSourceRefresh(ctx) }))
	s.cron.Start()
}

// Stop stops the cron runner, waiting for any in-flight task to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runTagRefresh(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.tagRefreshRunning, 0, 1) {
		if s.logger != nil {
			s.logger.Warn("tag cardinality refresh already running, skipping this tick")
		}
		return
	}
	defer atomic.StoreInt32(&s.tagRefreshRunning, 0)

	n, err := s.repo.RefreshTagCardinality(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "tag cardinality refresh failed", "error", err)
		}
		return
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "tag cardinality refresh completed", "rows", n)
	}
}

func (s *Scheduler) runGenSourceRefresh(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.genRefreshRunning, 0, 1) {
		if s.logger != nil {
			s.logger.Warn("gen-source stats refresh already running, skipping this tick")
		}
		return
	}
	defer atomic.StoreInt32(&s.genRefreshRunning, 0)

	n, err := s.repo.RefreshGenSourceStats(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "gen-source stats refresh failed", "error", err)
		}
		return
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "gen-source stats refresh completed", "rows", n)
	}
}

// RunTagRefreshNow triggers an immediate out-of-band tag cardinality
// refresh. It does not take the task-level lock the scheduled run uses.
func (s *Scheduler) RunTagRefreshNow(ctx context.Context) (int, error) {
	return s.repo.RefreshTagCardinality(ctx)
}

// RunGenSourceRefreshNow triggers an immediate out-of-band gen-source stats
// refresh. It does not take the task-level lock the scheduled run uses.
func (s *Scheduler) RunGenSourceRefreshNow(ctx context.Context) (int, error) {
	return s.repo.RefreshGenSourceStats(ctx)
}
