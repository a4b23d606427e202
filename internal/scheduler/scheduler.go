package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/runlock"
)

// Trigger starts one guarded pipeline run.
type Trigger interface {
	Trigger(ctx context.Context) (model.RunSummary, error)
}

// Scheduler owns the daemon loop: one run immediately, then one every
// interval.
type Scheduler struct {
	trigger  Trigger
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that triggers a run at the given interval.
func NewScheduler(trigger Trigger, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the polling loop. It returns nil when ctx is cancelled
// (graceful shutdown). The interval is measured from the end of a run, so
// runs never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "interval", s.interval.String())

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	summary, err := s.trigger.Trigger(ctx)
	switch {
	case errors.Is(err, runlock.ErrBusy):
		s.logger.Info("skipping scheduled run, another run is in progress")
	case err != nil:
		s.logger.Error("scheduled run could not start", "error", err)
	case !summary.Success:
		s.logger.Error("scheduled run failed", "run_id", summary.RunID, "error", summary.Error)
	default:
		s.logger.Info("scheduled run complete", "run_id", summary.RunID, "summary", summary.Message)
	}
}
