package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
)

// ErrBusy is returned by TryRun when another run holds the lock.
var ErrBusy = errors.New("another run is in progress")

// Guard allows at most one pipeline run per sink at a time, within this
// process (mutex) and across processes on the same host (lock file).
type Guard struct {
	mu   sync.Mutex
	path string
}

// New returns a Guard using the lock file at path. Processes that write to
// the same sheet must use the same path.
func New(path string) *Guard {
	return &Guard{path: path}
}

// Path returns the lock file location.
func (g *Guard) Path() string { return g.path }

// TryRun runs fn if no other run holds the lock and returns ErrBusy
// otherwise. It never waits.
func (g *Guard) TryRun(ctx context.Context, fn func(ctx context.Context)) error {
	if !g.mu.TryLock() {
		return ErrBusy
	}
	defer g.mu.Unlock()

	fl := flock.New(g.path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock %s: %w", g.path, err)
	}
	if !locked {
		return ErrBusy
	}
	defer fl.Unlock()

	fn(ctx)
	return nil
}
