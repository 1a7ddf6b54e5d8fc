package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/client"
	"github.com/jmallory/synclist/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and server status",
	Long: `Display the state of the local task store and whether the
configured server is reachable.

Shows:
  - Store location and task counts
  - Pending work (unsynced tasks and tombstones)
  - Server reachability`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		ctx, cancelCounts := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelCounts()
		counts, err := st.GetCounts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading store: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s synclist status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Store: %s\n", cfg.DBPath)
		fmt.Printf("Tasks: %d\n", counts.Total)
		fmt.Printf("Unsynced edits: %d\n", counts.Dirty)
		fmt.Printf("Pending deletes: %d\n", counts.Tombstones)
		fmt.Printf("Awaiting server id: %d\n", counts.Local)

		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelPing()
		remote := client.New(cfg.ServerURL, nil)
		if err := remote.Ping(pingCtx); err != nil {
			fmt.Printf("Server: %s %s\n", ui.RenderWarn("⚠ unreachable"), ui.RenderDim(cfg.ServerURL))
		} else {
			fmt.Printf("Server: %s %s\n", ui.RenderPass("✓ reachable"), ui.RenderDim(cfg.ServerURL))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
