package reconcile

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the target of a remote update or delete no longer
// exists server-side. The reconciler treats it as already-gone and purges
// the local record instead of failing.
var ErrNotFound = errors.New("remote task not found")

// TransportError indicates a remote call failed at the network or HTTP
// level. The caller may retry the whole reconcile later.
type TransportError struct {
	Op  string // list, create, update, delete
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError indicates the server rejected the task content.
// Retrying without correcting the task will fail again.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote rejected task: %s", e.Reason)
}

// Phase identifies which step of a reconcile run produced an error.
type Phase int

const (
	// PhasePushCreates pushes local-only tasks to the server.
	PhasePushCreates Phase = iota + 1
	// PhasePushChanges pushes updates and deletes for server-known tasks.
	PhasePushChanges
	// PhasePull fetches the server list and merges it into the store.
	PhasePull
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhasePushCreates:
		return "push-creates"
	case PhasePushChanges:
		return "push-changes"
	case PhasePull:
		return "pull"
	default:
		return "unknown"
	}
}

// PhaseError wraps the first error of an aborted reconcile run together
// with the phase that produced it.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("sync %s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
