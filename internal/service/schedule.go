package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
)

// Scheduler runs a sync on a cron schedule until its context is cancelled.
// Ticks that arrive while a sync is still running are skipped.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
	logger   logging.Logger
}

// NewScheduler validates expr, a standard five-field cron expression, and
// creates a scheduler that calls run on every tick.
func NewScheduler(expr string, run func(ctx context.Context) error, logger logging.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	return &Scheduler{expr: expr, schedule: schedule, run: run, logger: logging.OrNop(logger)}, nil
}

// Next returns the first tick after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is done, then waits for a running sync to return.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))

	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.logger.Info("scheduled sync starting")
		if err := s.run(ctx); err != nil {
			s.logger.Error("scheduled sync failed", "error", err)
			return
		}
		s.logger.Info("scheduled sync finished")
	}))

	c.Start()
	s.logger.Info("scheduler started", "schedule", s.expr, "next", s.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
