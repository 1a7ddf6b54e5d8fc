package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/task"
	"github.com/jmallory/synclist/internal/ui"
)

var addDescription string

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task to the local list",
	Long: `Add a task to the local store. The task syncs to the server on the
next reconcile; until then it carries a temporary local identifier.

With no title argument an interactive form opens.

Example usage:
  synclist add "Buy milk"
  synclist add "Call dentist" -d "Reschedule the cleaning"
  synclist add`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.Join(args, " ")
		description := addDescription

		if title == "" {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Title").
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("title is required")
							}
							return nil
						}).
						Value(&title),
					huh.NewText().
						Title("Description").
						Value(&description),
				),
			)
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		t := task.New(strings.TrimSpace(title), strings.TrimSpace(description))
		if err := t.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		if err := st.Save(t); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderDim(shortID(t.ID)), t.Title)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "task description")
	rootCmd.AddCommand(addCmd)
}
