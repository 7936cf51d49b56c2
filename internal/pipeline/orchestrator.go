package pipeline

import (
	"context"
	"log/slog"
)

// Schedule pairs a job with its cron expression. A nil Job is skipped.
type Schedule struct {
	Spec string
	Job  Job
	// RunOnStart also runs the job once before the first tick.
	RunOnStart bool
}

// Orchestrator registers the enabled jobs and runs the scheduler.
type Orchestrator struct {
	schedules []Schedule
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator for the given schedules.
func NewOrchestrator(logger *slog.Logger, schedules ...Schedule) *Orchestrator {
	return &Orchestrator{schedules: schedules, logger: logger}
}

// Run blocks until ctx is cancelled. It fails fast on an invalid schedule.
func (o *Orchestrator) Run(ctx context.Context) error {
	sched := NewScheduler(o.logger)
	for _, s := range o.schedules {
		if s.Job == nil {
			continue
		}
		if err := sched.Add(ctx, s.Spec, s.Job); err != nil {
			return err
		}
	}
	for _, s := range o.schedules {
		if s.Job != nil && s.RunOnStart {
			go sched.runOnce(ctx, s.Job)
		}
	}
	return sched.Run(ctx)
}
