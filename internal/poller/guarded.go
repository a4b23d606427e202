package poller

import (
	"context"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Runner is anything that performs one pipeline run.
type Runner interface {
	RunOnce(ctx context.Context) model.RunSummary
}

// Locker grants exclusive access to the sink for the duration of fn, or
// refuses immediately (runlock.Guard).
type Locker interface {
	TryRun(ctx context.Context, fn func(ctx context.Context)) error
}

// GuardedRunner is how every trigger (webhook, daemon, CLI) starts a run:
// under the sink lock and within the run timeout.
type GuardedRunner struct {
	runner     Runner
	lock       Locker
	runTimeout time.Duration
}

func NewGuardedRunner(runner Runner, lock Locker, runTimeout time.Duration) *GuardedRunner {
	return &GuardedRunner{runner: runner, lock: lock, runTimeout: runTimeout}
}

// Trigger runs the pipeline once. It returns the lock's error (for example
// runlock.ErrBusy) when the run could not start.
func (g *GuardedRunner) Trigger(ctx context.Context) (model.RunSummary, error) {
	var summary model.RunSummary
	err := g.lock.TryRun(ctx, func(ctx context.Context) {
		if g.runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.runTimeout)
			defer cancel()
		}
		summary = g.runner.RunOnce(ctx)
	})
	return summary, err
}
