// Package scheduler fires periodic jobs on cron schedules: the SLA sweep,
// the stale-dispute check, delayed-job promotion and retention cleanup.
// Schedules come from configuration. The scheduler only enqueues or invokes;
// all idempotency lives in the jobs themselves.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TaskFunc is one scheduled unit of work.
type TaskFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron with logging and graceful shutdown.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
}

// New builds a scheduler using standard 5-field cron expressions in UTC.
func New(ctx context.Context, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
		ctx:    ctx,
	}
}

// Add registers a named task. Panics in the task are contained by cron's
// recovery; errors are logged and left to the next tick.
func (s *Scheduler) Add(name, schedule string, task TaskFunc) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		if err := task(s.ctx); err != nil {
			s.logger.Error("scheduled task failed",
				zap.String("task", name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			return
		}
		s.logger.Debug("scheduled task completed",
			zap.String("task", name),
			zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled task registered", zap.String("task", name), zap.String("schedule", schedule))
	return nil
}

// Start begins firing tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
