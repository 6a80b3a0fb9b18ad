// Package cron runs the batch report job on a cron schedule. One
// expression, one job: the scheduler ticks once a minute and fires the
// job whenever its computed next-run time has passed.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Job is the work the scheduler fires, normally report regeneration.
type Job func(ctx context.Context) error

// Config holds the dependencies for the scheduler.
type Config struct {
	// Schedule is a 5-field cron expression. Empty disables the scheduler.
	Schedule string
	Job      Job
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler fires the job each time its cron schedule comes due.
type Scheduler struct {
	schedule string
	job      Job
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler with the given config. The schedule
// expression is validated on Start, not here.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: cfg.Schedule,
		job:      cfg.Job,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the scheduler loop in a background goroutine. It returns
// an error if the cron expression does not parse. An empty schedule is
// a no-op Start.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info("cron scheduler disabled, no schedule configured")
		return nil
	}
	next, err := NextRunTime(s.schedule, time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("cron scheduler started",
		"schedule", s.schedule,
		"next_run_at", next,
	)
	return nil
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
}

// NextRun reports when the job will fire next. Zero when disabled.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick fires the job when the schedule has come due and advances the
// next-run time past now so a slow job cannot double-fire.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := !s.nextRun.IsZero() && !now.Before(s.nextRun)
	s.mu.Unlock()
	if !due {
		return
	}

	next, err := NextRunTime(s.schedule, now)
	if err != nil {
		s.logger.Error("cron: failed to compute next run time",
			"cron_expr", s.schedule,
			"error", err,
		)
		return
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()

	if err := s.job(ctx); err != nil {
		s.logger.Error("cron: report job failed", "error", err)
		return
	}
	s.logger.Info("cron: report job fired", "next_run_at", next)
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
