package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmallory/synclist/internal/reconcile"
	"github.com/jmallory/synclist/internal/task"
)

// ErrNoTask indicates an update or delete target does not exist.
var ErrNoTask = errors.New("no such task")

// Backend is the authoritative task list, held in process memory.
// Identifiers are assigned from a monotonic counter and never reused.
type Backend struct {
	mu     sync.RWMutex
	tasks  map[int64]task.Content
	nextID int64
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		tasks:  make(map[int64]task.Content),
		nextID: 1,
	}
}

// List returns all tasks ordered by id.
func (b *Backend) List() []reconcile.RemoteTask {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]reconcile.RemoteTask, 0, len(b.tasks))
	for id, c := range b.tasks {
		out = append(out, reconcile.RemoteTask{ID: id, Content: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create validates the content, assigns an id, and stores the task.
// Missing timestamps are stamped server-side so clients that post only
// a title still produce complete records.
func (b *Backend) Create(c task.Content) (reconcile.RemoteTask, error) {
	if err := c.Validate(); err != nil {
		return reconcile.RemoteTask{}, err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.tasks[id] = c

	return reconcile.RemoteTask{ID: id, Content: c}, nil
}

// Update replaces the content of an existing task. A missing creation
// timestamp keeps the stored one; a missing update timestamp is stamped.
func (b *Backend) Update(id int64, c task.Content) error {
	if err := c.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.tasks[id]
	if !ok {
		return ErrNoTask
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	b.tasks[id] = c
	return nil
}

// Delete removes a task.
func (b *Backend) Delete(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tasks[id]; !ok {
		return ErrNoTask
	}
	delete(b.tasks, id)
	return nil
}

// Count returns the number of stored tasks.
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tasks)
}
