package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/ui"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks in the local store. Deleted tasks awaiting a server
round trip are hidden unless --all is given.

Markers:
  ✓  completed
  ~  not yet synced to the server
  ✗  pending remote delete (--all only)`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		ctx := context.Background()
		tasks, err := st.LoadAll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
			os.Exit(1)
		}
		if !listAll {
			visible, err := st.ListVisible(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
				os.Exit(1)
			}
			tasks = visible
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks. Add one with 'synclist add'.")
			return
		}

		for _, t := range tasks {
			marker := " "
			title := t.Title
			switch {
			case t.Deleted:
				marker = ui.RenderFail("✗")
				title = ui.RenderDim(title)
			case t.Completed:
				marker = ui.RenderPass("✓")
				title = ui.RenderDone(title)
			case t.Dirty || t.ID.IsLocal():
				marker = ui.RenderWarn("~")
			}
			fmt.Printf("%s %s  %s\n", marker, ui.RenderDim(fmt.Sprintf("%-8s", shortID(t.ID))), title)
			if t.Description != "" {
				fmt.Printf("             %s\n", ui.RenderDim(t.Description))
			}
		}
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include tasks pending remote delete")
	rootCmd.AddCommand(listCmd)
}
