// Package loadtest drives several simulated devices of one user against a
// live API server and checks that they converge.
//
// Every device owns a separate local store. Devices create records while
// offline, then all of them run full syncs concurrently. After a second round
// each device must hold exactly Devices*RecordsPerDevice synced rows with
// distinct remote ids, and every device must see the same remote ids.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/session"
	"github.com/steveyegge/fintrack/internal/store"
	engine "github.com/steveyegge/fintrack/internal/sync"
)

// Config holds load test parameters.
type Config struct {
	Devices          int
	RecordsPerDevice int

	// BaseURL is the API server under test.
	BaseURL string

	// Token and UserID name the account to use. When Token is empty a fresh
	// account is registered.
	Token  string
	UserID int64

	// DataDir holds the per-device databases. Defaults to a temp directory
	// that is removed afterwards.
	DataDir string

	// RateLimit caps each device's requests per second. 0 disables limiting.
	RateLimit float64

	// Logger receives progress. Defaults to stderr with a [loadtest] prefix.
	Logger *log.Logger
}

// LatencyStats captures timing of a set of operations.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Report is the outcome of a load test.
type Report struct {
	Devices          int
	RecordsPerDevice int
	Expected         int

	// Converged is true when every device holds the expected rows.
	Converged bool

	// RowsPerDevice is the local row count of each device after the run.
	RowsPerDevice []int

	// Syncs times every full sync, both rounds.
	Syncs LatencyStats

	// Requests times every remote call made by the engines.
	Requests LatencyStats

	// Failed counts records left pending or not stored across all syncs.
	Failed int

	// Problems lists convergence violations.
	Problems []string

	Elapsed time.Duration
}

type device struct {
	id     int
	db     *store.DB
	engine *engine.Engine
}

// Run executes the load test. It returns an error only when the test could
// not be set up; convergence failures are reported in the Report.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Devices < 1 {
		return nil, fmt.Errorf("devices must be at least 1 (got %d)", cfg.Devices)
	}
	if cfg.RecordsPerDevice < 0 {
		return nil, fmt.Errorf("records per device cannot be negative (got %d)", cfg.RecordsPerDevice)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[loadtest] ", log.LstdFlags)
	}
	quiet := log.New(io.Discard, "", 0)

	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "fintrack-loadtest-")
		if err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		defer os.RemoveAll(dir)
		dataDir = dir
	}

	sess, err := authenticate(ctx, cfg, quiet)
	if err != nil {
		return nil, err
	}
	userID, _ := sess.CurrentUserID()
	logger.Printf("Running %d devices x %d records as user %d", cfg.Devices, cfg.RecordsPerDevice, userID)

	timer := &recorder{}
	devices := make([]*device, 0, cfg.Devices)
	defer func() {
		for _, d := range devices {
			_ = d.db.Close()
		}
	}()

	for i := 0; i < cfg.Devices; i++ {
		db, err := store.OpenContext(ctx, filepath.Join(dataDir, fmt.Sprintf("device-%03d.db", i)))
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}

		client := remote.New(&remote.Config{
			BaseURL:   cfg.BaseURL,
			Timeout:   30 * time.Second,
			RateLimit: cfg.RateLimit,
			UserAgent: "fintrack-loadtest",
			Logger:    quiet,
		}, sess)

		eng := engine.New(db, &timedRemote{Remote: client, rec: timer}, sess, &engine.Config{Logger: quiet})
		devices = append(devices, &device{id: i, db: db, engine: eng})

		if err := seedOffline(ctx, db, userID, i, cfg.RecordsPerDevice); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
	}

	start := time.Now()
	var syncDurations []time.Duration
	failed := 0

	// Round one pushes everything; round two pulls what other devices pushed
	// after this device's first pull.
	for round := 1; round <= 2; round++ {
		tallies := syncAll(ctx, devices)
		for _, t := range tallies {
			syncDurations = append(syncDurations, t.Duration)
			failed += t.Failed
		}
		logger.Printf("Round %d complete", round)
	}

	report := &Report{
		Devices:          cfg.Devices,
		RecordsPerDevice: cfg.RecordsPerDevice,
		Expected:         cfg.Devices * cfg.RecordsPerDevice,
		Syncs:            computeLatencyStats(syncDurations),
		Requests:         computeLatencyStats(timer.snapshot()),
		Failed:           failed,
		Elapsed:          time.Since(start),
	}

	if err := verify(ctx, devices, userID, report); err != nil {
		return nil, err
	}
	report.Converged = len(report.Problems) == 0

	return report, nil
}

// authenticate returns the session shared by all devices.
func authenticate(ctx context.Context, cfg Config, logger *log.Logger) (*session.Static, error) {
	if cfg.Token != "" {
		if cfg.UserID == 0 {
			return nil, fmt.Errorf("user id is required with a token")
		}
		return session.NewStatic(cfg.UserID, cfg.Token), nil
	}

	client := remote.New(&remote.Config{BaseURL: cfg.BaseURL, Timeout: 30 * time.Second, Logger: logger}, nil)
	email := fmt.Sprintf("loadtest-%s@example.com", uuid.NewString())
	res, err := client.Register(ctx, email, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to register load test user: %w", err)
	}
	return session.NewStatic(res.UserID, res.Token), nil
}

// seedOffline writes pending transactions straight to the store, as if the
// device had been offline.
func seedOffline(ctx context.Context, db *store.DB, userID int64, deviceID, n int) error {
	base := model.NewDate(2024, time.January, 1)
	for j := 0; j < n; j++ {
		kind := model.KindExpense
		if j%5 == 0 {
			kind = model.KindIncome
		}
		tx := &model.Transaction{
			OwnerUserID: userID,
			Amount:      decimal.New(int64(100+j), -2).Add(decimal.NewFromInt(int64(deviceID))),
			Description: fmt.Sprintf("device %d record %d", deviceID, j),
			Kind:        kind,
			Category:    fmt.Sprintf("category-%d", j%7),
			OccurredAt:  model.DateOf(base.Time().AddDate(0, 0, j%365)),
		}
		if _, err := db.CreateTransactionContext(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// syncAll runs one full sync per device concurrently.
func syncAll(ctx context.Context, devices []*device) []engine.Tally {
	tallies := make([]engine.Tally, len(devices))

	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func(i int, d *device) {
			defer wg.Done()
			tallies[i] = d.engine.FullSync(ctx)
		}(i, d)
	}
	wg.Wait()

	return tallies
}

// verify checks convergence and fills report.RowsPerDevice and Problems.
func verify(ctx context.Context, devices []*device, userID int64, report *Report) error {
	var reference map[int64]bool

	for _, d := range devices {
		txs, err := d.db.ListTransactionsContext(ctx, userID)
		if err != nil {
			return fmt.Errorf("device %d: %w", d.id, err)
		}
		report.RowsPerDevice = append(report.RowsPerDevice, len(txs))

		if len(txs) != report.Expected {
			report.Problems = append(report.Problems,
				fmt.Sprintf("device %d has %d rows, want %d", d.id, len(txs), report.Expected))
		}

		seen := make(map[int64]bool, len(txs))
		for _, tx := range txs {
			if !tx.Synced || tx.RemoteID == nil {
				report.Problems = append(report.Problems,
					fmt.Sprintf("device %d row %d is still pending", d.id, tx.LocalID))
				continue
			}
			if seen[*tx.RemoteID] {
				report.Problems = append(report.Problems,
					fmt.Sprintf("device %d has duplicate remote id %d", d.id, *tx.RemoteID))
			}
			seen[*tx.RemoteID] = true
		}

		if reference == nil {
			reference = seen
			continue
		}
		if !sameKeys(reference, seen) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("device %d disagrees with device 0 on remote ids", d.id))
		}
	}

	return nil
}

func sameKeys(a, b map[int64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// recorder collects durations from concurrent callers.
type recorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *recorder) observe(start time.Time) {
	elapsed := time.Since(start)
	r.mu.Lock()
	r.durations = append(r.durations, elapsed)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.durations...)
}

// timedRemote records the latency of every call that reaches the server.
type timedRemote struct {
	engine.Remote
	rec *recorder
}

func (t *timedRemote) CreateTransaction(ctx context.Context, p model.TransactionPayload) (int64, error) {
	defer t.rec.observe(time.Now())
	return t.Remote.CreateTransaction(ctx, p)
}

func (t *timedRemote) ListTransactions(ctx context.Context) ([]model.RemoteTransaction, error) {
	defer t.rec.observe(time.Now())
	return t.Remote.ListTransactions(ctx)
}

func (t *timedRemote) CreateGoal(ctx context.Context, p model.GoalPayload) (int64, error) {
	defer t.rec.observe(time.Now())
	return t.Remote.CreateGoal(ctx, p)
}

func (t *timedRemote) ListGoals(ctx context.Context) ([]model.RemoteGoal, error) {
	defer t.rec.observe(time.Now())
	return t.Remote.ListGoals(ctx)
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}

// ErrNotConverged is returned by Report.Err when devices disagree.
var ErrNotConverged = errors.New("devices did not converge")

// Err returns ErrNotConverged with the first problem, or nil.
func (r *Report) Err() error {
	if r.Converged {
		return nil
	}
	if len(r.Problems) == 0 {
		return ErrNotConverged
	}
	return fmt.Errorf("%w: %s (and %d more)", ErrNotConverged, r.Problems[0], len(r.Problems)-1)
}

// Print writes a human-readable report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Devices:       %d\n", r.Devices)
	fmt.Fprintf(w, "Records:       %d per device, %d expected\n", r.RecordsPerDevice, r.Expected)
	fmt.Fprintf(w, "Converged:     %v\n", r.Converged)
	fmt.Fprintf(w, "Failed:        %d\n", r.Failed)
	fmt.Fprintf(w, "Elapsed:       %v\n", r.Elapsed.Round(time.Millisecond))
	r.Syncs.print(w, "Full sync latency")
	r.Requests.print(w, "Request latency")
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  problem: %s\n", p)
	}
}

func (s LatencyStats) print(w io.Writer, title string) {
	fmt.Fprintf(w, "%s (%d samples):\n", title, s.Count)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
