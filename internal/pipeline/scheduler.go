// Package pipeline runs the ledger's background jobs (event archive and
// leaderboard rebuild) on cron schedules.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/arenaledger/internal/metrics"
)

// Job is one scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps a robfig cron runner. Jobs use standard 5-field
// expressions; a run still in progress when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   int
}

// NewScheduler creates an idle Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	logger = logger.With(slog.String("component", "scheduler"))
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// ValidateSpec reports whether spec is a valid 5-field cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("pipeline: invalid cron %q: %w", spec, err)
	}
	return nil
}

// Add registers job on spec. Jobs run with the context passed to Run.
func (s *Scheduler) Add(ctx context.Context, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("pipeline: schedule %s on %q: %w", job.Name(), spec, err)
	}
	s.jobs++
	s.logger.Info("job scheduled", slog.String("job", job.Name()), slog.String("cron", spec))
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := job.Run(ctx)
	metrics.RecordJob(job.Name(), time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "job failed",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// Run starts the cron runner and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", slog.Int("jobs", s.jobs))
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
