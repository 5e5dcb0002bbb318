package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner is the part of the Reconciler the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (*Result, error)
}

// SchedulerConfig places the daily pool report at a wall-clock time.
type SchedulerConfig struct {
	Runner    Runner
	RunHour   int
	RunMinute int
	Location  *time.Location
	// RunOnStart produces a report immediately instead of waiting for the
	// first slot.
	RunOnStart bool
	Now        func() time.Time
	Logger     *slog.Logger
}

// Scheduler produces one reconciliation report per day.
type Scheduler struct {
	runner     Runner
	hour       int
	minute     int
	location   *time.Location
	runOnStart bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewScheduler validates the run slot.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("recon: scheduler requires a runner")
	}
	if cfg.RunHour < 0 || cfg.RunHour > 23 || cfg.RunMinute < 0 || cfg.RunMinute > 59 {
		return nil, fmt.Errorf("recon: invalid run time %02d:%02d", cfg.RunHour, cfg.RunMinute)
	}
	s := &Scheduler{
		runner:     cfg.Runner,
		hour:       cfg.RunHour,
		minute:     cfg.RunMinute,
		location:   cfg.Location,
		runOnStart: cfg.RunOnStart,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Start blocks until ctx is cancelled, running the report at every slot.
func (s *Scheduler) Start(ctx context.Context) {
	if s.runOnStart {
		s.runOnce(ctx)
	}
	for {
		now := s.now().In(s.location)
		next := s.nextRun(now)
		s.logger.Debug("recon: next run scheduled", "at", next)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.runner.Run(ctx, RunOptions{})
	if err != nil {
		s.logger.Error("recon: scheduled run failed", "error", err)
		return
	}
	s.logger.Info("recon: scheduled run complete",
		"offers", len(result.Rows),
		"anomalies", len(result.Anomalies),
		"csv", result.CSVPath)
}

// nextRun returns the first slot strictly after the given instant.
func (s *Scheduler) nextRun(after time.Time) time.Time {
	local := after.In(s.location)
	slot := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if !slot.After(local) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}
