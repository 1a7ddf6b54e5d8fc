// Package reconcile merges an offline local task set against the
// server's authoritative task list.
//
// Overview
//
// Local mutations accumulate offline in the store: new tasks carry a
// client-generated local identifier, edited tasks are flagged dirty, and
// deleted server-known tasks become tombstones. A reconcile run converges
// local and remote state in three ordered phases:
//
//	Local store                         Server
//	  local tasks      ── create ──►      assigns ids   (phase 1)
//	  dirty tasks      ── update ──►      replaces      (phase 2)
//	  tombstones       ── delete ──►      removes       (phase 2)
//	  clean records    ◄── list ────      overwrites    (phase 3)
//
// Phase 1 remaps each created task's identifier to the server id. Phase 3
// applies last-writer-wins with local bias: a record still flagged dirty
// keeps its local content, so an unpushed edit is never clobbered by a
// concurrent server change; the server copy lands on a later run once the
// local edit has been pushed.
//
// Failure Handling
//
// Any remote failure aborts the remaining iterations of its phase and
// skips the phases after it. Changes already applied stand; the result
// reports the first error and the phase that produced it, and the caller
// re-runs when it chooses (typically on the next connectivity event).
// A missing update or delete target is not a failure: the task is already
// gone server-side and the local record is purged.
//
// Running an already-consistent state applies zero changes and issues no
// mutating remote calls, so retries are harmless.
package reconcile
