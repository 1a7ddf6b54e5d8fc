package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmallory/synclist/internal/client"
	"github.com/jmallory/synclist/internal/config"
	"github.com/jmallory/synclist/internal/daemon"
	"github.com/jmallory/synclist/internal/reconcile"
	"github.com/jmallory/synclist/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon reconciles the local store with the server on a fixed
interval, and immediately after a capture file lands in the inbox
directory (when inbox_dir is configured).

The daemon will:
  1. Reconcile once on startup
  2. Watch the inbox directory for dropped capture files
  3. Import captures and trigger an immediate reconcile
  4. Reconcile again every sync_interval

With log_file configured, output goes to a size-rotated log instead of
stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		logger := daemonLogger(cfg)

		remote := client.New(cfg.ServerURL, nil)
		rec := reconcile.New(remote, st, logger)

		d, err := daemon.New(rec, st, &daemon.Config{
			SyncInterval: cfg.SyncInterval,
			InboxDir:     cfg.InboxDir,
			Logger:       logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Server: %s\n", cfg.ServerURL)
		fmt.Printf("   Store: %s\n", cfg.DBPath)
		fmt.Printf("   Interval: %s\n", cfg.SyncInterval)
		if cfg.InboxDir != "" {
			fmt.Printf("   Inbox: %s\n", cfg.InboxDir)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func daemonLogger(cfg *config.Config) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "[daemon] ", log.LstdFlags)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
