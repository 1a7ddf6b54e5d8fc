package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/config"
	"github.com/jmallory/synclist/internal/store"
	"github.com/jmallory/synclist/internal/task"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "synclist",
	Short: "Offline-first task list with client/server sync",
	Long: `synclist keeps a local task list in SQLite and reconciles it with a
task server in three ordered phases:

  1. Push new local tasks and adopt the server-assigned identifiers
  2. Push pending deletes and edits for tasks the server knows
  3. Pull the server list and merge it into the local store

Tasks created offline work immediately and sync when the server is
reachable. Run 'synclist daemon' for continuous background sync or
'synclist sync' for a one-shot reconcile.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.synclist/config.yaml)")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening task store: %v\n", err)
		os.Exit(1)
	}
	return st
}

// resolveTask turns a CLI argument into a stored task. A numeric
// argument is a server id; anything else matches a unique prefix of a
// local token.
func resolveTask(st *store.Store, arg string) (*task.Task, error) {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil && n > 0 {
		t, err := st.Get(task.RemoteID(n))
		if err != nil {
			return nil, fmt.Errorf("no task with id %d", n)
		}
		return t, nil
	}

	all, err := st.LoadAll()
	if err != nil {
		return nil, err
	}

	var matches []*task.Task
	for _, t := range all {
		if t.ID.IsLocal() && strings.HasPrefix(t.ID.Token(), arg) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no task matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q matches %d tasks, use a longer prefix", arg, len(matches))
	}
}

// shortID renders an identifier for listings: the server id, or the
// first eight characters of a local token.
func shortID(id task.ID) string {
	if id.IsRemote() {
		return strconv.FormatInt(id.Remote(), 10)
	}
	token := id.Token()
	if len(token) > 8 {
		token = token[:8]
	}
	return token
}
