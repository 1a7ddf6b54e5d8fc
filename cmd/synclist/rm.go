package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/ui"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Long: `Delete a task. A task the server knows is tombstoned locally and
removed from the server on the next sync. A task that never synced is
removed outright.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		t, err := resolveTask(st, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if t.ID.IsLocal() {
			if err := st.Purge(t.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing task: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Removed: %s\n", ui.RenderPass("✓"), t.Title)
			return
		}

		if t.Deleted {
			fmt.Printf("%s Already pending delete: %s\n", ui.RenderWarn("⚠"), t.Title)
			return
		}

		t.MarkDeleted()
		if err := st.Save(t); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Deleted: %s (removed from server on next sync)\n", ui.RenderPass("✓"), t.Title)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
