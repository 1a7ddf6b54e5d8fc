package reconcile

import (
	"context"

	"github.com/jmallory/synclist/internal/task"
)

// RemoteTask is a task as the server reports it: a server id plus
// content fields. It doubles as the wire shape of the REST API.
type RemoteTask struct {
	ID int64 `json:"id"`
	task.Content
}

// Remote is the set of server capabilities a reconcile run needs.
// Each call is a single blocking request that succeeds or fails
// atomically; implementations map missing targets to ErrNotFound and
// rejected content to *ValidationError.
type Remote interface {
	// List returns the full authoritative task list.
	List(ctx context.Context) ([]RemoteTask, error)

	// Create stores a new task and returns it with its assigned id.
	Create(ctx context.Context, content task.Content) (RemoteTask, error)

	// Update replaces the content of an existing task.
	Update(ctx context.Context, id int64, content task.Content) error

	// Delete removes a task.
	Delete(ctx context.Context, id int64) error
}

// Store is the local keyed store a reconcile run reads and writes.
// Calls are atomic individually; the reconciler issues them sequentially
// and assumes exclusive access for the duration of a run.
type Store interface {
	// LoadAll returns every local record, tombstones and dirty entries
	// included.
	LoadAll() ([]*task.Task, error)

	// Save inserts or replaces a record keyed by its identifier.
	Save(t *task.Task) error

	// Purge removes a record entirely. Purging a missing record is not
	// an error.
	Purge(id task.ID) error

	// Rekey atomically replaces the record stored under old with t,
	// keyed by t's identifier. Either both the removal and the insert
	// happen or neither does.
	Rekey(old task.ID, t *task.Task) error
}
