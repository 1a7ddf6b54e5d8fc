// Package inbox imports capture files into the local task store.
//
// Capture tooling (camera, geolocation grabbers, quick-entry scripts)
// drops JSON files into a directory; the watcher picks them up, creates
// a dirty local task for each, and removes the file. The next sync run
// pushes the imported tasks to the server.
package inbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmallory/synclist/internal/task"
)

// Store is the slice of the local store the importer needs.
type Store interface {
	Save(t *task.Task) error
}

// Config holds watcher configuration.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it
	// is imported, so partially written files are not picked up.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher watches an inbox directory and imports capture files.
type Watcher struct {
	dir    string
	store  Store
	config *Config

	watcher *fsnotify.Watcher

	pending   map[string]time.Time
	pendingMu sync.Mutex

	// Imported receives each task after it lands in the store, so the
	// daemon can kick a sync. Buffered; drops are harmless because the
	// periodic sync picks imports up anyway.
	Imported chan *task.Task

	wg sync.WaitGroup
}

// New creates a watcher over dir. Start must be called before events
// are processed.
func New(dir string, store Store, config *Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		store:    store,
		config:   config,
		watcher:  fw,
		pending:  make(map[string]time.Time),
		Imported: make(chan *task.Task, 64),
	}, nil
}

// Start imports any files already present, then watches for new ones.
// It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	// Catch up on files dropped while we were not running.
	if err := w.importExisting(); err != nil {
		return err
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}

	w.config.Logger.Printf("Watching inbox: %s", w.dir)

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processPending(ctx)

	<-ctx.Done()

	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()

	w.config.Logger.Println("Inbox watcher stopped")
	return nil
}

// importExisting imports every capture file already in the directory.
// Individual file failures are logged and skipped.
func (w *Watcher) importExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.importFile(path); err != nil {
			w.config.Logger.Printf("WARNING: Failed to import %s: %v", entry.Name(), err)
		}
	}
	return nil
}

// watchEvents queues filesystem events for debounced processing.
func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending imports files that have sat unchanged long enough.
func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.drainPending()
		}
	}
}

func (w *Watcher) drainPending() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.pending {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		delete(w.pending, path)

		if err := w.importFile(path); err != nil {
			w.config.Logger.Printf("WARNING: Failed to import %s: %v", filepath.Base(path), err)
		}
	}
}

// importFile reads a capture file, stores it as a dirty local task, and
// removes the file. The file is claimed by renaming it out of the
// watched .json namespace first, so neither a duplicate event nor a
// failed cleanup can import the same capture twice under fresh
// identifiers.
func (w *Watcher) importFile(path string) error {
	claimed := path + ".importing"
	if err := os.Rename(path, claimed); err != nil {
		if os.IsNotExist(err) {
			// Already claimed by an earlier event for the same file.
			return nil
		}
		return fmt.Errorf("failed to claim capture file: %w", err)
	}

	capture, err := task.ReadCaptureFile(claimed)
	if err != nil {
		_ = os.Remove(claimed)
		return err
	}

	t := capture.ToTask()
	if err := w.store.Save(t); err != nil {
		// Nothing was stored; put the file back so the next scan retries.
		_ = os.Rename(claimed, path)
		return fmt.Errorf("failed to store imported task: %w", err)
	}

	if err := os.Remove(claimed); err != nil {
		// The task is stored and the leftover no longer matches the
		// .json filter, so it cannot be imported again.
		w.config.Logger.Printf("WARNING: Failed to remove imported file %s: %v", filepath.Base(claimed), err)
	}

	w.config.Logger.Printf("Imported task %s (%s)", t.ID, t.Title)

	select {
	case w.Imported <- t:
	default:
	}

	return nil
}
