package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/config"
	"github.com/steveyegge/fintrack/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the fintrack API server",
	Long: `Run the API server that fintrack clients sync with.

The sqlite driver stores data in <data-dir>/server.db unless --dsn names a
file. The postgres driver uses --dsn, or DATABASE_URL, or DB_USER,
DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME, loading a .env file first.

Example usage:
  fintrack serve                                 # SQLite on :8080
  fintrack serve --driver postgres --addr :9000`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("driver") {
			cfg.Server.Driver, _ = cmd.Flags().GetString("driver")
		}
		if cmd.Flags().Changed("dsn") {
			cfg.Server.DSN, _ = cmd.Flags().GetString("dsn")
		}
		if debug, _ := cmd.Flags().GetBool("debug"); !debug {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		repo, err := openRepository(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer repo.Close()

		srv := server.New(repo, &server.Config{
			Addr:   cfg.Server.Addr,
			Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
		})

		fmt.Printf("fintrack server %s on %s (%s)\n", server.Version, cfg.Server.Addr, cfg.Server.Driver)
		fmt.Println("Press Ctrl+C to stop...")

		if err := srv.ListenAndServe(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Server stopped")
	},
}

func openRepository(ctx context.Context, c *config.Config) (server.Repository, error) {
	switch c.Server.Driver {
	case config.DriverPostgres:
		dsn, err := server.PostgresDSN(c.Server.DSN)
		if err != nil {
			return nil, err
		}
		repo, err := server.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverSQLite:
		if err := os.MkdirAll(c.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := server.OpenSQLite(ctx, c.ServerDatabasePath())
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown server driver %q", c.Server.Driver)
	}
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().String("driver", "", "sqlite or postgres (default from config)")
	serveCmd.Flags().String("dsn", "", "Database file (sqlite) or connection string (postgres)")
	serveCmd.Flags().Bool("debug", false, "Run gin in debug mode")

	rootCmd.AddCommand(serveCmd)
}
