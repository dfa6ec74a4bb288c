package runner

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// DefaultSchedule fires once a day at midnight.
const DefaultSchedule = "0 0 * * *"

// Scheduler fires a run on a cron schedule.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	run      func(ctx context.Context) error
}

// NewScheduler parses a standard five-field cron spec. Empty spec uses
// DefaultSchedule. Times are evaluated in UTC.
func NewScheduler(spec string, run func(ctx context.Context) error) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parse schedule %q", spec)
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		loc:      time.UTC,
		run:      run,
	}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run blocks until ctx is done, firing runs on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	lg := zctx.From(ctx)

	c := cron.NewWithLocation(s.loc)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.fire(ctx) }))
	c.Start()
	defer c.Stop()

	lg.Info("Scheduler started",
		zap.String("spec", s.spec),
		zap.Time("next", s.Next(time.Now())),
	)
	<-ctx.Done()
	lg.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	lg := zctx.From(ctx)
	if ctx.Err() != nil {
		return
	}

	lg.Info("Scheduled run starting")
	switch err := s.run(ctx); {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		lg.Info("Scheduled run skipped, another run in progress")
	default:
		lg.Error("Scheduled run failed", zap.Error(err))
	}
}
