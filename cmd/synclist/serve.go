package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmallory/synclist/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task server",
	Long: `Start the HTTP task server that sync clients reconcile against.

The server keeps the authoritative task list, assigns ids to pushed
tasks, and broadcasts changes to WebSocket subscribers.

Endpoints:
  GET/POST    /api/tasks
  PUT/DELETE  /api/tasks/{id}
  GET         /health
  WS          /ws

Example usage:
  synclist serve                  # listen on the configured address
  synclist serve --addr :9000     # listen on a custom address`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		addr := cfg.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.NewServer(server.NewBackend(), &server.Config{
			Addr:   addr,
			Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
		})

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Task server listening on %s\n", srv.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", srv.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
