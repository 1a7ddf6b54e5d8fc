package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/config"
	"github.com/jmallory/synclist/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage synclist configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter config file with the default settings, ready to
edit. Refuses to overwrite an existing file.

The default location is ~/.synclist/config.yaml; pass --config to write
elsewhere.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}

		if err := config.WriteSkeleton(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		fmt.Printf("db_path: %s\n", cfg.DBPath)
		fmt.Printf("server_url: %s\n", cfg.ServerURL)
		fmt.Printf("listen_addr: %s\n", cfg.ListenAddr)
		fmt.Printf("sync_interval: %s\n", cfg.SyncInterval)
		fmt.Printf("inbox_dir: %s\n", cfg.InboxDir)
		fmt.Printf("log_file: %s\n", cfg.LogFile)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
