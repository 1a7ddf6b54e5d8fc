package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/jmallory/synclist/internal/reconcile"
)

// ErrSyncInFlight indicates a reconcile run is already executing.
// The three-phase algorithm reads and writes the same records without
// internal locking, so overlapping runs are refused rather than queued.
var ErrSyncInFlight = errors.New("a sync run is already in progress")

// Runner serializes reconcile runs against one local store.
type Runner struct {
	rec *reconcile.Reconciler
	mu  sync.Mutex
}

// NewRunner wraps a reconciler.
func NewRunner(rec *reconcile.Reconciler) *Runner {
	return &Runner{rec: rec}
}

// Run executes a reconcile run, or returns ErrSyncInFlight if one is
// already executing.
func (r *Runner) Run(ctx context.Context) (*reconcile.Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrSyncInFlight
	}
	defer r.mu.Unlock()

	return r.rec.Run(ctx)
}

// RunBlocking executes a reconcile run, waiting for any in-flight run
// to finish first.
func (r *Runner) RunBlocking(ctx context.Context) (*reconcile.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rec.Run(ctx)
}
