package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/dashboard"
	"github.com/steveyegge/fintrack/internal/metrics"
	engine "github.com/steveyegge/fintrack/internal/sync"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start real-time WebSocket dashboard for sync activity",
	Long: `Start a WebSocket dashboard server that syncs periodically and broadcasts
every sync outcome to connected clients.

WebSocket messages include:
- record_update: Record synced, left pending, pulled or deleted
- sync_complete: Full sync finished, with pushed/pulled/failed counts
- stats: Local record counts and running totals

Prometheus metrics are served at /metrics.

Example usage:
  fintrack dashboard                   # Start on default port 8090
  fintrack dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8090/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		applyIntervalFlag(cmd)
		if cmd.Flags().Changed("port") {
			cfg.DashboardPort, _ = cmd.Flags().GetInt("port")
		}

		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
		m := metrics.New()

		server := dashboard.NewServer(&dashboard.Config{
			Port:    cfg.DashboardPort,
			Metrics: m.Handler(),
			Logger:  logger,
		})
		handler := dashboard.NewHandler(server, logger)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpenApp(ctx, appOptions{Observer: engine.MultiObserver{m, handler}})
		defer a.Close()

		if err := server.Start(); err != nil {
			a.fatalf("failed to start dashboard: %v", err)
		}

		port := cfg.DashboardPort
		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Metrics: http://localhost:%d/metrics\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		refresh := func() {
			if elig := a.engine.Eligibility(ctx); elig.Eligible() {
				a.engine.FullSync(ctx)
			} else {
				logger.Printf("Skipping sync: %s", ineligibleReason(elig))
			}
			if userID, ok := a.session.CurrentUserID(); ok {
				txs, goals, pending, err := a.counts(ctx, userID)
				if err != nil {
					logger.Printf("WARNING: Failed to count records: %v", err)
					return
				}
				handler.SetCounts(txs, goals, pending)
			}
		}

		refresh()
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				refresh()
			}
		}

		// Graceful shutdown
		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			a.fatalf("failed to stop dashboard: %v", err)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	dashboardCmd.Flags().Duration("interval", 0, "Time between syncs (default from config)")

	rootCmd.AddCommand(dashboardCmd)
}
