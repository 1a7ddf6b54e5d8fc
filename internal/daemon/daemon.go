// Package daemon orchestrates background synchronization: periodic
// reconcile runs, on-demand kicks, and inbox imports.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jmallory/synclist/internal/inbox"
	"github.com/jmallory/synclist/internal/reconcile"
)

// Config holds daemon configuration.
type Config struct {
	// SyncInterval is how often a reconcile run is attempted.
	SyncInterval time.Duration

	// InboxDir, when non-empty, enables the capture file watcher.
	InboxDir string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs the sync loop. Reconcile runs are serialized through a
// Runner; an interval tick that lands while a run is in flight is
// skipped rather than queued.
type Daemon struct {
	runner *Runner
	store  inbox.Store
	config *Config

	kick chan struct{}
	wg   sync.WaitGroup
}

// New creates a daemon around a reconciler.
func New(rec *reconcile.Reconciler, store inbox.Store, config *Config) (*Daemon, error) {
	if rec == nil {
		return nil, fmt.Errorf("reconciler cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}

	return &Daemon{
		runner: NewRunner(rec),
		store:  store,
		config: config,
		kick:   make(chan struct{}, 1),
	}, nil
}

// Kick requests a sync run outside the regular interval, e.g. after a
// connectivity-restore event. Coalesces if one is already requested.
func (d *Daemon) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Start runs the daemon until ctx is cancelled. An initial sync runs
// immediately.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting sync daemon")

	if d.config.InboxDir != "" {
		if d.store == nil {
			return fmt.Errorf("inbox watching requires a store")
		}
		w, err := inbox.New(d.config.InboxDir, d.store, &inbox.Config{
			DebounceInterval: 200 * time.Millisecond,
			Logger:           d.config.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher: %w", err)
		}

		d.wg.Add(2)
		go func() {
			defer d.wg.Done()
			if err := w.Start(ctx); err != nil {
				d.config.Logger.Printf("Inbox watcher stopped with error: %v", err)
			}
		}()
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-w.Imported:
					d.Kick()
				}
			}
		}()
	}

	d.trySync(ctx)

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			d.wg.Wait()
			d.config.Logger.Println("Sync daemon stopped")
			return nil

		case <-ticker.C:
			d.trySync(ctx)

		case <-d.kick:
			d.trySync(ctx)
		}
	}
}

// trySync attempts a reconcile run, logging the outcome. A run already
// in flight or a sync failure is not fatal; the next trigger retries.
func (d *Daemon) trySync(ctx context.Context) {
	res, err := d.runner.Run(ctx)
	switch {
	case errors.Is(err, ErrSyncInFlight):
		d.config.Logger.Println("Skipping sync: previous run still in flight")
	case err != nil:
		d.config.Logger.Printf("Sync failed: %v", err)
	case res.Applied > 0:
		d.config.Logger.Printf("Sync applied %d changes", res.Applied)
	}
}
