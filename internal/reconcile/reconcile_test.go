package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmallory/synclist/internal/task"
)

// fakeRemote is an in-memory server with per-operation failure injection
// and call counting.
type fakeRemote struct {
	tasks  map[int64]task.Content
	nextID int64

	failCreate error
	failUpdate error
	failDelete error
	failList   error

	// failCreateAfter fails the Nth create call (1-based); 0 disables.
	failCreateAfter int

	lists   int
	creates int
	updates int
	deletes int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tasks: make(map[int64]task.Content), nextID: 1}
}

func (f *fakeRemote) List(ctx context.Context) ([]RemoteTask, error) {
	f.lists++
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]RemoteTask, 0, len(f.tasks))
	// Deterministic order keeps failures reproducible.
	for id := int64(1); id < f.nextID; id++ {
		if c, ok := f.tasks[id]; ok {
			out = append(out, RemoteTask{ID: id, Content: c})
		}
	}
	return out, nil
}

func (f *fakeRemote) Create(ctx context.Context, c task.Content) (RemoteTask, error) {
	f.creates++
	if f.failCreate != nil {
		return RemoteTask{}, f.failCreate
	}
	if f.failCreateAfter > 0 && f.creates >= f.failCreateAfter {
		return RemoteTask{}, &TransportError{Op: "create", Err: errors.New("connection reset")}
	}
	id := f.nextID
	f.nextID++
	f.tasks[id] = c
	return RemoteTask{ID: id, Content: c}, nil
}

func (f *fakeRemote) Update(ctx context.Context, id int64, c task.Content) error {
	f.updates++
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, ok := f.tasks[id]; !ok {
		return ErrNotFound
	}
	f.tasks[id] = c
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, id int64) error {
	f.deletes++
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRemote) mutations() int { return f.creates + f.updates + f.deletes }

// fakeStore is an in-memory Store keyed by task.ID.Key().
type fakeStore struct {
	tasks map[string]*task.Task

	failSave error

	// failLoadAllAt fails the Nth LoadAll call (1-based); 0 disables.
	failLoadAllAt int
	loadAlls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*task.Task)}
}

func (s *fakeStore) LoadAll() ([]*task.Task, error) {
	s.loadAlls++
	if s.failLoadAllAt > 0 && s.loadAlls >= s.failLoadAllAt {
		return nil, errors.New("disk error")
	}
	out := make([]*task.Task, 0, len(s.tasks))
	// Local tasks first, then remote by id, for stable iteration.
	for _, t := range s.tasks {
		if t.ID.IsLocal() {
			out = append(out, t.Clone())
		}
	}
	for id := int64(1); id < 1000; id++ {
		if t, ok := s.tasks[task.RemoteID(id).Key()]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) Save(t *task.Task) error {
	if s.failSave != nil {
		return s.failSave
	}
	s.tasks[t.ID.Key()] = t.Clone()
	return nil
}

func (s *fakeStore) Purge(id task.ID) error {
	delete(s.tasks, id.Key())
	return nil
}

func (s *fakeStore) Rekey(old task.ID, t *task.Task) error {
	delete(s.tasks, old.Key())
	s.tasks[t.ID.Key()] = t.Clone()
	return nil
}

func (s *fakeStore) get(t *testing.T, id task.ID) *task.Task {
	t.Helper()
	got, ok := s.tasks[id.Key()]
	if !ok {
		t.Fatalf("task %s not in store", id)
	}
	return got
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func makeTask(id task.ID, title string, dirty bool) *task.Task {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &task.Task{
		ID: id,
		Content: task.Content{
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Dirty: dirty,
	}
}

func TestRun_CreateRemapsIdentifier(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	local := makeTask(task.LocalID("x1"), "Buy milk", true)
	if err := store.Save(local); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Tasks))
	}

	got := res.Tasks[0]
	if !got.ID.IsRemote() {
		t.Fatalf("expected remote identifier, got %s", got.ID)
	}
	if got.ID.Remote() != 1 {
		t.Errorf("expected server id 1, got %d", got.ID.Remote())
	}
	if got.Title != "Buy milk" {
		t.Errorf("expected title preserved, got %q", got.Title)
	}
	if got.Dirty {
		t.Error("created task should be clean after push")
	}
	if _, ok := store.tasks[task.LocalID("x1").Key()]; ok {
		t.Error("local record should be gone after remap")
	}
}

func TestRun_Idempotent(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	for i, title := range []string{"One", "Two", "Three"} {
		tk := makeTask(task.NewLocalID(), title, true)
		if i == 2 {
			tk.Completed = true
		}
		if err := store.Save(tk); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	rec := New(remote, store, testLogger())

	first, err := rec.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if first.Applied != 3 {
		t.Errorf("expected 3 applied changes, got %d", first.Applied)
	}

	before := remote.mutations()
	second, err := rec.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if second.Applied != 0 {
		t.Errorf("second run applied %d changes, want 0", second.Applied)
	}
	if remote.mutations() != before {
		t.Errorf("second run issued %d mutating calls, want 0", remote.mutations()-before)
	}
	if len(second.Tasks) != len(first.Tasks) {
		t.Errorf("task set changed between runs: %d vs %d", len(first.Tasks), len(second.Tasks))
	}
}

func TestRun_LocalWinsWhileDirty(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Server holds a different copy of task 3.
	remote.tasks[3] = task.Content{Title: "Server title", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	remote.nextID = 4

	// Local copy is dirty with an unpushed edit, but the update will fail
	// so the edit cannot land this run.
	local := makeTask(task.RemoteID(3), "Local edit", true)
	if err := store.Save(local); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	remote.failUpdate = &TransportError{Op: "update", Err: errors.New("timeout")}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort on update failure")
	}
	if res.Err == nil || res.Err.Phase != PhasePushChanges {
		t.Fatalf("expected push-changes phase error, got %v", res.Err)
	}

	got := store.get(t, task.RemoteID(3))
	if got.Title != "Local edit" {
		t.Errorf("dirty local content was clobbered: got %q", got.Title)
	}
	if !got.Dirty {
		t.Error("task should remain dirty until the edit lands")
	}
}

func TestRun_DirtyEditPushedThenClean(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.tasks[1] = task.Content{Title: "Old", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	remote.nextID = 2

	local := makeTask(task.RemoteID(1), "New title", true)
	if err := store.Save(local); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}

	if remote.tasks[1].Title != "New title" {
		t.Errorf("server copy not updated: %q", remote.tasks[1].Title)
	}
	got := store.get(t, task.RemoteID(1))
	if got.Dirty {
		t.Error("task should be clean after a pushed update")
	}
}

func TestRun_TombstonePurgedAfterRemoteDelete(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.tasks[5] = task.Content{Title: "Doomed", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	remote.nextID = 6

	local := makeTask(task.RemoteID(5), "Doomed", false)
	local.Deleted = true
	local.Dirty = true
	if err := store.Save(local); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}

	if _, ok := remote.tasks[5]; ok {
		t.Error("server copy should be deleted")
	}
	if _, ok := store.tasks[task.RemoteID(5).Key()]; ok {
		t.Error("tombstone should be purged after confirmed delete")
	}
	for _, got := range res.Tasks {
		if got.ID.Remote() == 5 {
			t.Error("deleted task still present in result set")
		}
	}
}

func TestRun_FailFastOnCreate(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Three local tasks; the second create fails.
	for _, title := range []string{"A", "B", "C"} {
		if err := store.Save(makeTask(task.NewLocalID(), title, true)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	remote.failCreateAfter = 2

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort")
	}

	if res.Err == nil {
		t.Fatal("result should carry the phase error")
	}
	if res.Err.Phase != PhasePushCreates {
		t.Errorf("expected push-creates phase, got %s", res.Err.Phase)
	}
	var te *TransportError
	if !errors.As(res.Err, &te) {
		t.Errorf("expected TransportError, got %T", res.Err.Err)
	}

	if remote.creates != 2 {
		t.Errorf("expected exactly 2 create attempts (fail-fast), got %d", remote.creates)
	}
	if remote.lists != 0 {
		t.Error("pull phase must not run after an aborted create phase")
	}

	// The first create stands: one task remapped, two still local.
	var remapped, stillLocal int
	for _, got := range res.Tasks {
		if got.ID.IsRemote() {
			remapped++
		} else {
			stillLocal++
			if !got.Dirty {
				t.Errorf("unpushed task %s should stay dirty", got.ID)
			}
		}
	}
	if remapped != 1 || stillLocal != 2 {
		t.Errorf("expected 1 remapped and 2 local tasks, got %d/%d", remapped, stillLocal)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change before the abort, got %d", res.Applied)
	}
}

func TestRun_PullOverwritesCleanRecord(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.tasks[3] = task.Content{
		Title:     "Changed",
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	remote.nextID = 4

	if err := store.Save(makeTask(task.RemoteID(3), "Original", false)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}

	got := store.get(t, task.RemoteID(3))
	if got.Title != "Changed" {
		t.Errorf("expected pulled title %q, got %q", "Changed", got.Title)
	}
	if got.Dirty {
		t.Error("pulled record must stay clean")
	}
}

func TestRun_PullInsertsUnknownRemoteTask(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.tasks[7] = task.Content{Title: "From another device", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	remote.nextID = 8

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}

	got := store.get(t, task.RemoteID(7))
	if got.Title != "From another device" {
		t.Errorf("unexpected title %q", got.Title)
	}
	if got.Dirty {
		t.Error("inserted record must be clean")
	}
}

func TestRun_PullPurgesCleanRecordGoneRemotely(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Clean local record, but the server no longer lists it.
	if err := store.Save(makeTask(task.RemoteID(9), "Gone", false)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if _, ok := store.tasks[task.RemoteID(9).Key()]; ok {
		t.Error("clean record deleted remotely should be purged")
	}
}

func TestRun_NotFoundOnUpdatePurges(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Dirty edit for a task the server has already deleted.
	if err := store.Save(makeTask(task.RemoteID(4), "Edited too late", true)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if _, ok := store.tasks[task.RemoteID(4).Key()]; ok {
		t.Error("record should be purged when the update target is gone")
	}
}

func TestRun_NotFoundOnDeletePurges(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	tomb := makeTask(task.RemoteID(6), "Already gone", false)
	tomb.Deleted = true
	tomb.Dirty = true
	if err := store.Save(tomb); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if _, ok := store.tasks[task.RemoteID(6).Key()]; ok {
		t.Error("tombstone should be purged when the delete target is gone")
	}
}

func TestRun_DeletedLocalTaskPurgedWithoutRemoteCall(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Stored directly to bypass Validate: a crashed client can leave this.
	store.tasks[task.LocalID("tmp").Key()] = &task.Task{
		ID:      task.LocalID("tmp"),
		Content: task.Content{Title: "Scratch", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Dirty:   true,
		Deleted: true,
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if remote.creates != 0 || remote.deletes != 0 {
		t.Errorf("deleted local task must never reach the server (creates=%d deletes=%d)",
			remote.creates, remote.deletes)
	}
	if len(store.tasks) != 0 {
		t.Error("deleted local task should be purged")
	}
}

func TestRun_ValidationErrorSurfaces(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.failCreate = &ValidationError{Reason: "title is required"}
	if err := store.Save(makeTask(task.NewLocalID(), "bad", true)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if res.Err.Phase != PhasePushCreates {
		t.Errorf("expected push-creates phase, got %s", res.Err.Phase)
	}

	// The task is untouched so the caller can correct and re-run.
	for _, got := range res.Tasks {
		if !got.ID.IsLocal() || !got.Dirty {
			t.Errorf("rejected task should stay local and dirty, got %s dirty=%v", got.ID, got.Dirty)
		}
	}
}

func TestRun_ListFailureReportsPullPhase(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	remote.failList = &TransportError{Op: "list", Err: errors.New("503")}
	if err := store.Save(makeTask(task.NewLocalID(), "Push me", true)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort")
	}
	if res.Err.Phase != PhasePull {
		t.Errorf("expected pull phase, got %s", res.Err.Phase)
	}

	// The pushed create from phase 1 stands.
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}
	if len(res.Tasks) != 1 || !res.Tasks[0].ID.IsRemote() {
		t.Error("phase 1 remap should survive a later abort")
	}
}

func TestRun_MixedScenario(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	// Server: tasks 1 (changed remotely) and 2 (unchanged).
	remote.tasks[1] = task.Content{Title: "One v2", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	remote.tasks[2] = task.Content{Title: "Two", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	remote.nextID = 3

	// Local: clean copy of 1, tombstone for 2, one new local task.
	if err := store.Save(makeTask(task.RemoteID(1), "One v1", false)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	tomb := makeTask(task.RemoteID(2), "Two", false)
	tomb.Deleted = true
	tomb.Dirty = true
	if err := store.Save(tomb); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(makeTask(task.NewLocalID(), "Three", true)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// create + delete + pulled overwrite of task 1.
	if res.Applied != 3 {
		t.Errorf("expected 3 applied changes, got %d", res.Applied)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("expected 2 tasks after sync, got %d", len(res.Tasks))
	}

	byTitle := map[string]*task.Task{}
	for _, got := range res.Tasks {
		byTitle[got.Title] = got
	}
	if _, ok := byTitle["One v2"]; !ok {
		t.Error("expected remotely changed copy of task 1")
	}
	if _, ok := byTitle["Three"]; !ok {
		t.Error("expected new task to survive with a remote id")
	}
	if _, ok := remote.tasks[2]; ok {
		t.Error("tombstoned task should be deleted server-side")
	}

	// A second run settles completely.
	second, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.Applied != 0 {
		t.Errorf("expected converged state, got %d changes", second.Applied)
	}
}

func TestRun_ResultSurvivesLoadFailureAfterSync(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	if err := store.Save(makeTask(task.NewLocalID(), "Pushed", true)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// All three phases succeed; only the final reload fails.
	// LoadAll runs once per phase, so the 4th call is the reload.
	store.failLoadAllAt = 4

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected the reload failure to surface")
	}
	if res == nil {
		t.Fatal("Result must be non-nil even when the reload fails")
	}
	if res.Applied != 1 {
		t.Errorf("expected the applied count to survive, got %d", res.Applied)
	}
	if res.Err != nil {
		t.Errorf("a reload failure is not a phase error, got %v", res.Err)
	}
}

func TestRun_RemapDoesNotRouteThroughSave(t *testing.T) {
	remote := newFakeRemote()
	store := newFakeStore()

	local := makeTask(task.LocalID("x1"), "Buy milk", true)
	if err := store.Save(local); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// If the remap were a purge followed by a save, a failing save
	// would lose the record after the server already created the task.
	store.failSave = errors.New("disk full")

	res, err := New(remote, store, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("expected 1 applied change, got %d", res.Applied)
	}

	got := store.get(t, task.RemoteID(1))
	if got.Title != "Buy milk" {
		t.Errorf("remapped record holds %q", got.Title)
	}
	if _, ok := store.tasks[task.LocalID("x1").Key()]; ok {
		t.Error("old key should be gone after the remap")
	}
}

func TestPhaseError_Format(t *testing.T) {
	cases := []struct {
		phase Phase
		want  string
	}{
		{PhasePushCreates, "push-creates"},
		{PhasePushChanges, "push-changes"},
		{PhasePull, "pull"},
		{Phase(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tc.phase, got, tc.want)
		}
	}

	pe := &PhaseError{Phase: PhasePull, Err: fmt.Errorf("boom")}
	if pe.Error() != "sync pull phase: boom" {
		t.Errorf("unexpected error string: %q", pe.Error())
	}
	if !errors.Is(pe, pe.Err) {
		t.Error("PhaseError should unwrap to its cause")
	}
}
