package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/client"
	"github.com/jmallory/synclist/internal/daemon"
	"github.com/jmallory/synclist/internal/reconcile"
	"github.com/jmallory/synclist/internal/ui"
)

var syncQuiet bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local store with the server once",
	Long: `Run one reconcile pass against the configured server:

  1. Push new local tasks and adopt the server-assigned ids
  2. Push pending deletes and edits
  3. Pull the server list and merge

If a phase fails the remaining phases are skipped; work already pushed
stays applied and the next sync resumes from the current state.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		if syncQuiet {
			logger = log.New(io.Discard, "", 0)
		}

		remote := client.New(cfg.ServerURL, nil)
		runner := daemon.NewRunner(reconcile.New(remote, st, logger))

		if !syncQuiet {
			fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.ServerURL)
		}
		start := time.Now()

		// RunBlocking waits for the single-flight lock instead of
		// bailing out when another run holds it.
		res, err := runner.RunBlocking(context.Background())
		elapsed := time.Since(start).Round(time.Millisecond)

		if err != nil {
			applied := 0
			if res != nil {
				applied = res.Applied
			}
			fmt.Fprintf(os.Stderr, "%s Sync stopped after %d change(s): %v\n",
				ui.RenderFail("✗"), applied, err)
			os.Exit(1)
		}

		if syncQuiet {
			return
		}
		if res.Applied == 0 {
			fmt.Printf("%s Already in sync (%v)\n", ui.RenderPass("✓"), elapsed)
			return
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed)
		fmt.Printf("   Changes: %d\n", res.Applied)
		fmt.Printf("   Tasks: %d\n", len(res.Tasks))
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.AddCommand(syncCmd)
}
