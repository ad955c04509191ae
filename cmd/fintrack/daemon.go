package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep local records in sync in the background",
	Long: `Run a full sync at startup, every sync interval, and whenever you log in
or out. Syncs are skipped while logged out or while the server is
unreachable. Only one daemon may run per data directory.

Example usage:
  fintrack daemon                         # sync every 5 minutes
  fintrack daemon --interval 1m --log-file ~/.fintrack/daemon.log`,
	Run: func(cmd *cobra.Command, args []string) {
		applyIntervalFlag(cmd)
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile, _ = cmd.Flags().GetString("log-file")
		}

		logger, closer := daemon.NewLogger(cfg.LogFile)
		defer closer.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpenApp(ctx, appOptions{Logger: logger})
		defer a.Close()

		d, err := daemon.New(a.engine, cfg.SessionPath(), &daemon.Config{
			SyncInterval:     cfg.SyncInterval,
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			LockPath:         cfg.LockPath(),
			Logger:           logger,
		})
		if err != nil {
			a.fatalf("failed to create daemon: %v", err)
		}

		fmt.Printf("Sync daemon started (interval %s, server %s)\n", cfg.SyncInterval, cfg.APIURL)
		fmt.Println("Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				a.fatalf("a daemon is already running for %s", cfg.DataDir)
			} else {
				a.fatalf("%v", err)
			}
		}

		stats := d.Stats()
		fmt.Printf("\nDaemon stopped after %d syncs (%d skipped)\n", stats.Syncs, stats.Skipped)
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "Time between periodic syncs (default from config)")
	daemonCmd.Flags().String("log-file", "", "Write logs to a rotating file instead of stderr")

	rootCmd.AddCommand(daemonCmd)
}
