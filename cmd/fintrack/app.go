package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/session"
	"github.com/steveyegge/fintrack/internal/store"
	engine "github.com/steveyegge/fintrack/internal/sync"
)

// app bundles the collaborators every record command needs.
type app struct {
	db      *store.DB
	session *session.FileStore
	client  *remote.Client
	engine  *engine.Engine
}

type appOptions struct {
	// Logger receives sync failures. Defaults to stderr with a [sync] prefix.
	Logger *log.Logger

	// Observer is notified of sync outcomes.
	Observer engine.Observer
}

// openApp opens the local database and wires the sync engine to the
// session file and the configured server.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.OpenContext(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	sess := session.NewFileStore(cfg.SessionPath())

	var remoteLogger *log.Logger
	if opts.Logger != nil {
		remoteLogger = log.New(opts.Logger.Writer(), "[remote] ", opts.Logger.Flags())
	}
	client := remote.New(&remote.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: "fintrack-cli/" + Version,
		Logger:    remoteLogger,
	}, sess)

	eng := engine.New(db, client, sess, &engine.Config{
		Logger:       opts.Logger,
		Observer:     opts.Observer,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	})

	return &app{
		db:      db,
		session: sess,
		client:  client,
		engine:  eng,
	}, nil
}

// mustOpenApp is openApp for commands that cannot continue without it.
func mustOpenApp(ctx context.Context, opts appOptions) *app {
	a, err := openApp(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return a
}

// exit is os.Exit; tests replace it.
var exit = os.Exit

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// fatalf prints an error and exits after closing the database, since
// deferred calls do not run past os.Exit.
func (a *app) fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	a.Close()
	exit(1)
}

// requireUser returns the logged-in user or exits.
func (a *app) requireUser() int64 {
	userID, ok := a.session.CurrentUserID()
	if !ok {
		a.fatalf("not logged in (run 'fintrack login')")
	}
	return userID
}

// counts returns the local row counts of userID.
func (a *app) counts(ctx context.Context, userID int64) (transactions, goals, pending int, err error) {
	transactions, txPending, err := a.db.CountTransactionsContext(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	goals, goalPending, err := a.db.CountGoalsContext(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	return transactions, goals, txPending + goalPending, nil
}

// applyIntervalFlag lets a command's --interval override sync_interval.
func applyIntervalFlag(cmd *cobra.Command) {
	if !cmd.Flags().Changed("interval") {
		return
	}
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --interval must be positive (got %s)\n", interval)
		os.Exit(1)
	}
	cfg.SyncInterval = interval
}
