// Package task provides the task entity shared by the store, the
// reconciler, and the HTTP surfaces.
package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Content holds the fields a task carries over the wire. Location and
// photo are opaque payloads captured by other tooling and passed through
// unexamined.
type Content struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Completed   bool            `json:"completed"`
	Location    json.RawMessage `json:"location,omitempty"`
	Photo       json.RawMessage `json:"photo,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the content fields.
func (c *Content) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(c.Title))
	}
	return nil
}

// Equal reports whether two contents are identical field for field.
// Timestamps compare by instant, payloads byte for byte.
func (c *Content) Equal(other *Content) bool {
	return c.Title == other.Title &&
		c.Description == other.Description &&
		c.Completed == other.Completed &&
		bytes.Equal(c.Location, other.Location) &&
		bytes.Equal(c.Photo, other.Photo) &&
		c.CreatedAt.Equal(other.CreatedAt) &&
		c.UpdatedAt.Equal(other.UpdatedAt)
}

// Task is a task record as held in the local store. Dirty marks a local
// mutation not yet confirmed by the server; Deleted marks a tombstone
// awaiting remote deletion.
type Task struct {
	ID ID `json:"id"`
	Content
	Dirty   bool `json:"dirty"`
	Deleted bool `json:"deleted"`
}

// New creates a local, dirty, uncompleted task.
func New(title, description string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID: NewLocalID(),
		Content: Content{
			Title:       title,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Dirty: true,
	}
}

// Validate checks the task for storage.
func (t *Task) Validate() error {
	if t.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	if err := t.Content.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if t.Deleted && t.ID.IsLocal() {
		// Tombstones only make sense for server-known tasks; a deleted
		// local task is purged outright.
		return fmt.Errorf("local task cannot carry a tombstone")
	}
	return nil
}

// Touch marks a local mutation: bumps the update timestamp and sets dirty.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
	t.Dirty = true
}

// MarkDeleted tombstones the task for remote deletion. The caller purges
// local-only tasks directly instead.
func (t *Task) MarkDeleted() {
	t.Deleted = true
	t.Touch()
}

// AssignRemote replaces a local identifier with the server-assigned id
// and clears the dirty flag. A task moves from local to remote exactly
// once; a second assignment is an error.
func (t *Task) AssignRemote(id int64) error {
	if !t.ID.IsLocal() {
		return fmt.Errorf("task %s already has a remote identifier", t.ID)
	}
	t.ID = RemoteID(id)
	t.Dirty = false
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Location = append(json.RawMessage(nil), t.Location...)
	c.Photo = append(json.RawMessage(nil), t.Photo...)
	return &c
}
