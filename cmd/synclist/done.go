package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/ui"
)

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Long: `Mark a task completed. The change is local until the next sync
pushes it to the server.

The id is the server id shown by 'synclist list', or a unique prefix of
the temporary identifier for tasks not yet synced.`,
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
		if t.Deleted {
			fmt.Fprintf(os.Stderr, "Error: task %s is pending delete\n", shortID(t.ID))
			os.Exit(1)
		}

		if t.Completed {
			fmt.Printf("%s Already done: %s\n", ui.RenderPass("✓"), t.Title)
			return
		}

		t.Completed = true
		t.Touch()
		if err := st.Save(t); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Done: %s\n", ui.RenderPass("✓"), ui.RenderDone(t.Title))
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
}
