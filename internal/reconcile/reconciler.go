package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jmallory/synclist/internal/task"
)

// Result reports what a reconcile run did.
type Result struct {
	// Applied counts local and remote changes applied: creates pushed,
	// updates pushed, deletes confirmed, records merged or purged.
	Applied int

	// Tasks is the local task set after the run, tombstones included if
	// an abort left any behind.
	Tasks []*task.Task

	// Err is the first error of an aborted run, tagged with its phase.
	// Nil when all three phases completed.
	Err *PhaseError
}

// Reconciler merges the local task set against the server's
// authoritative list in three ordered phases: push creates, push
// updates and deletes, then pull and merge.
//
// A run is fail-fast: the first remote failure aborts the remaining
// iterations of its phase and the phases after it, but changes already
// applied stand. Re-running a consistent state applies zero changes and
// issues no mutating remote calls.
//
// A Reconciler is not safe for concurrent runs against the same store;
// callers serialize runs (see daemon.Runner).
type Reconciler struct {
	remote Remote
	store  Store
	logger *log.Logger
}

// New creates a Reconciler. If logger is nil, a default logger writing
// to stderr is used.
func New(remote Remote, store Store, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler{
		remote: remote,
		store:  store,
		logger: logger,
	}
}

// Run executes the three phases. The returned Result is always non-nil
// and carries the applied count even when an error is returned. On a
// phase failure it also carries Result.Err; the returned error is that
// same *PhaseError. The caller decides whether to re-run.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	if err := r.pushCreates(ctx, res); err != nil {
		return r.abort(res, PhasePushCreates, err)
	}
	if err := r.pushChanges(ctx, res); err != nil {
		return r.abort(res, PhasePushChanges, err)
	}
	if err := r.pull(ctx, res); err != nil {
		return r.abort(res, PhasePull, err)
	}

	tasks, err := r.store.LoadAll()
	if err != nil {
		// The sync itself succeeded; report the count with the error.
		return res, fmt.Errorf("failed to load task set after sync: %w", err)
	}
	res.Tasks = tasks

	r.logger.Printf("Sync complete: %d changes, %d tasks", res.Applied, len(res.Tasks))
	return res, nil
}

// abort records the phase failure and returns the partial result.
func (r *Reconciler) abort(res *Result, phase Phase, err error) (*Result, error) {
	res.Err = &PhaseError{Phase: phase, Err: err}
	if tasks, loadErr := r.store.LoadAll(); loadErr == nil {
		res.Tasks = tasks
	}
	r.logger.Printf("Sync aborted in %s phase after %d changes: %v", phase, res.Applied, err)
	return res, res.Err
}

// pushCreates sends every live local-only task to the server and remaps
// its identifier to the returned server id. A create failure aborts the
// run; skipping one silently would let later phases assume it exists.
func (r *Reconciler) pushCreates(ctx context.Context, res *Result) error {
	tasks, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load local tasks: %w", err)
	}

	for _, t := range tasks {
		if !t.ID.IsLocal() {
			continue
		}

		if t.Deleted {
			// Never reached the server; drop it outright.
			if err := r.store.Purge(t.ID); err != nil {
				return fmt.Errorf("failed to purge deleted local task %s: %w", t.ID, err)
			}
			res.Applied++
			continue
		}

		created, err := r.remote.Create(ctx, t.Content)
		if err != nil {
			return err
		}

		old := t.ID
		if err := t.AssignRemote(created.ID); err != nil {
			return err
		}
		// Rekey moves the record under its server key in one step; a
		// failure cannot leave the store without the record.
		if err := r.store.Rekey(old, t); err != nil {
			return fmt.Errorf("failed to remap task %s: %w", old, err)
		}

		r.logger.Printf("Pushed create: %s -> %s (%s)", old, t.ID, t.Title)
		res.Applied++
	}

	return nil
}

// pushChanges sends deletes for tombstoned tasks and updates for dirty
// ones. A target missing server-side counts as already gone and resolves
// by purging the local record.
func (r *Reconciler) pushChanges(ctx context.Context, res *Result) error {
	tasks, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load local tasks: %w", err)
	}

	for _, t := range tasks {
		if !t.ID.IsRemote() {
			continue
		}

		if t.Deleted {
			err := r.remote.Delete(ctx, t.ID.Remote())
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := r.store.Purge(t.ID); err != nil {
				return fmt.Errorf("failed to purge task %s: %w", t.ID, err)
			}
			r.logger.Printf("Pushed delete: %s (%s)", t.ID, t.Title)
			res.Applied++
			continue
		}

		if !t.Dirty {
			continue
		}

		err = r.remote.Update(ctx, t.ID.Remote(), t.Content)
		if errors.Is(err, ErrNotFound) {
			// Deleted server-side while we were editing; the server copy
			// is authoritative for existence.
			if err := r.store.Purge(t.ID); err != nil {
				return fmt.Errorf("failed to purge task %s: %w", t.ID, err)
			}
			r.logger.Printf("Dropped update for task %s: already deleted remotely", t.ID)
			res.Applied++
			continue
		}
		if err != nil {
			return err
		}

		t.Dirty = false
		if err := r.store.Save(t); err != nil {
			return fmt.Errorf("failed to save task %s: %w", t.ID, err)
		}
		r.logger.Printf("Pushed update: %s (%s)", t.ID, t.Title)
		res.Applied++
	}

	return nil
}

// pull fetches the server list and merges it into the store. A clean
// local record takes the server content; a dirty one keeps its unpushed
// edit until the next run lands it. Clean records the server no longer
// lists are purged.
func (r *Reconciler) pull(ctx context.Context, res *Result) error {
	remoteTasks, err := r.remote.List(ctx)
	if err != nil {
		return err
	}

	locals, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load local tasks: %w", err)
	}

	byRemote := make(map[int64]*task.Task, len(locals))
	for _, t := range locals {
		if t.ID.IsRemote() {
			byRemote[t.ID.Remote()] = t
		}
	}

	seen := make(map[int64]bool, len(remoteTasks))
	for _, rt := range remoteTasks {
		seen[rt.ID] = true

		local, ok := byRemote[rt.ID]
		if ok && local.Dirty {
			// Unpushed local edit wins until it lands server-side.
			continue
		}
		if ok && local.Content.Equal(&rt.Content) {
			continue
		}

		merged := &task.Task{ID: task.RemoteID(rt.ID), Content: rt.Content}
		if err := r.store.Save(merged); err != nil {
			return fmt.Errorf("failed to save task %s: %w", merged.ID, err)
		}
		if ok {
			r.logger.Printf("Pulled update: %s (%s)", merged.ID, merged.Title)
		} else {
			r.logger.Printf("Pulled new task: %s (%s)", merged.ID, merged.Title)
		}
		res.Applied++
	}

	for id, local := range byRemote {
		if seen[id] || local.Dirty {
			continue
		}
		if err := r.store.Purge(local.ID); err != nil {
			return fmt.Errorf("failed to purge task %s: %w", local.ID, err)
		}
		r.logger.Printf("Purged task %s: no longer listed remotely", local.ID)
		res.Applied++
	}

	return nil
}
