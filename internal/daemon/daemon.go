// Package daemon runs full syncs in the background.
//
// The daemon:
// 1. Takes a single-instance lock in the data directory
// 2. Runs a full sync on startup when the device is eligible
// 3. Watches the session file and syncs shortly after login or logout
// 4. Runs a full sync on every tick of SyncInterval
// 5. Handles graceful shutdown
//
// All syncs run on one goroutine, so two full syncs never overlap.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	engine "github.com/steveyegge/fintrack/internal/sync"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Syncer is the part of the sync engine the daemon drives.
type Syncer interface {
	Eligibility(ctx context.Context) engine.Eligibility
	FullSync(ctx context.Context) engine.Tally
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full sync.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after the last session file
	// event before syncing. This batches the create+write pair of a login.
	DebounceInterval time.Duration

	// LockPath is the single-instance lock file. Empty disables locking.
	LockPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// NewLogger returns a daemon logger. When logFile is set, output goes to a
// size-rotated file and the returned closer must be closed on exit.
func NewLogger(logFile string) (*log.Logger, io.Closer) {
	if logFile == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags), nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return log.New(lj, "[daemon] ", log.LstdFlags), lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Daemon orchestrates session watching and periodic full syncs.
type Daemon struct {
	syncer  Syncer
	watcher *SessionWatcher
	config  *Config
	logger  *log.Logger

	mu      sync.Mutex
	lock    *fileLock
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	syncs   int
	skipped int
	last    engine.Tally
}

// New creates a daemon for the session file at sessionPath.
// A nil config means DefaultConfig(). Use Start() to begin syncing.
func New(syncer Syncer, sessionPath string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if sessionPath == "" {
		return nil, fmt.Errorf("sessionPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive (got %s)", config.SyncInterval)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := NewSessionWatcher(sessionPath)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		syncer:  syncer,
		watcher: watcher,
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins the daemon's operation and blocks until ctx is cancelled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true

	if d.config.LockPath != "" {
		lock, err := acquireLock(d.config.LockPath)
		if err != nil {
			d.mu.Unlock()
			_ = d.watcher.Stop()
			close(d.done)
			return err
		}
		d.lock = lock
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	defer close(d.done)
	defer d.shutdown()

	d.logger.Println("Starting daemon")

	if err := os.MkdirAll(filepath.Dir(d.watcher.Path()), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := d.watcher.Start(); err != nil {
		return err
	}
	d.logger.Printf("Watching: %s", d.watcher.Path())

	d.syncIfEligible(ctx, "startup")
	d.run(ctx)

	d.logger.Println("Shutdown signal received")
	return nil
}

// Stop gracefully shuts down the daemon and waits for an in-flight sync.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	started, cancel := d.started, d.cancel
	d.mu.Unlock()

	if !started {
		return d.watcher.Stop()
	}
	if cancel != nil {
		cancel()
	}
	<-d.done
	return nil
}

func (d *Daemon) shutdown() {
	d.logger.Println("Stopping daemon")

	if err := d.watcher.Stop(); err != nil {
		d.logger.Printf("Error closing watcher: %v", err)
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.lock.release(); err != nil {
		d.logger.Printf("Error releasing lock: %v", err)
	}
	d.lock = nil
	d.mu.Unlock()

	d.logger.Println("Daemon stopped")
}

// run is the single sync goroutine.
func (d *Daemon) run(ctx context.Context) {
	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.syncIfEligible(ctx, "interval")

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Printf("Session event: %s %s", ev.Op, ev.Path)
			if debounce == nil {
				debounce = time.NewTimer(d.config.DebounceInterval)
			} else {
				debounce.Reset(d.config.DebounceInterval)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			d.syncIfEligible(ctx, "session change")

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)
		}
	}
}

// syncIfEligible runs one full sync, or logs why it was skipped.
func (d *Daemon) syncIfEligible(ctx context.Context, reason string) {
	elig := d.syncer.Eligibility(ctx)
	if !elig.Eligible() {
		why := "backend unavailable"
		if !elig.Authenticated {
			why = "not logged in"
		}
		d.logger.Printf("Skipping %s sync: %s", reason, why)

		d.mu.Lock()
		d.skipped++
		d.mu.Unlock()
		return
	}

	tally := d.syncer.FullSync(ctx)
	d.logger.Printf("Sync (%s): %s in %s", reason, tally.Message(), tally.Duration.Round(time.Millisecond))

	d.mu.Lock()
	d.syncs++
	d.last = tally
	d.mu.Unlock()
}

// Stats is a snapshot of daemon activity.
type Stats struct {
	Syncs   int
	Skipped int
	Last    engine.Tally
}

// Stats returns how many syncs have run and been skipped.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Syncs: d.syncs, Skipped: d.skipped, Last: d.last}
}
