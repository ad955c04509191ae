package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/session"
	"github.com/steveyegge/fintrack/internal/store"
)

// Config configures an Engine.
type Config struct {
	// Logger receives per-record failures. Defaults to stderr with a [sync] prefix.
	Logger *log.Logger

	// Observer is notified of every outcome. Defaults to NopObserver.
	Observer Observer

	// MaxRetries is how many extra attempts a remote call gets after a
	// network failure. 0 means a single attempt with immediate fallback.
	MaxRetries int

	// RetryBackoff is the pause before each retry.
	RetryBackoff time.Duration
}

// DefaultConfig returns the single-attempt policy.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   0,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Engine runs the sync operations for whichever user the session names at
// the moment each operation starts.
type Engine struct {
	store    Store
	remote   Remote
	session  session.Source
	logger   *log.Logger
	observer Observer

	maxRetries   int
	retryBackoff time.Duration
}

// New creates an engine. A nil cfg means DefaultConfig().
func New(st Store, rc Remote, sess session.Source, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	var observer Observer = NopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Engine{
		store:        st,
		remote:       rc,
		session:      sess,
		logger:       logger,
		observer:     observer,
		maxRetries:   maxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Eligibility reports whether the session holds a token and the server is up.
func (e *Engine) Eligibility(ctx context.Context) Eligibility {
	el := Eligibility{Authenticated: e.session.Token() != ""}
	if el.Authenticated {
		el.BackendAvailable = e.remote.Health(ctx)
	}
	return el
}

// AddOptions controls AddTransaction and AddGoal.
type AddOptions struct {
	// Eligible enables the immediate remote attempt.
	Eligible bool

	// OnSynced is called after the server confirmed the record.
	OnSynced func(Outcome)
}

// AddTransaction stores tx for the current user and, if eligible, pushes it.
//
// Only a local store failure is returned. A remote failure leaves the row
// pending and is reported in the outcome.
func (e *Engine) AddTransaction(ctx context.Context, tx *model.Transaction, opts AddOptions) (Outcome, error) {
	return addRecord(ctx, e, e.transactions(), tx, opts)
}

// AddGoal stores g for the current user and, if eligible, pushes it.
// A second goal for the same month is stored locally and left pending with a
// conflict reason.
func (e *Engine) AddGoal(ctx context.Context, g *model.Goal, opts AddOptions) (Outcome, error) {
	return addRecord(ctx, e, e.goals(), g, opts)
}

// PushPendingTransactions uploads every pending transaction of the current user.
func (e *Engine) PushPendingTransactions(ctx context.Context) (*BatchResult, error) {
	return pushPending(ctx, e, e.transactions())
}

// PushPendingGoals uploads every pending goal of the current user.
func (e *Engine) PushPendingGoals(ctx context.Context) (*BatchResult, error) {
	return pushPending(ctx, e, e.goals())
}

// PullTransactions inserts server transactions not yet present locally.
func (e *Engine) PullTransactions(ctx context.Context) *BatchResult {
	return pull(ctx, e, e.transactions())
}

// PullGoals inserts server goals not yet present locally.
func (e *Engine) PullGoals(ctx context.Context) *BatchResult {
	return pull(ctx, e, e.goals())
}

// FullSync pushes then pulls transactions, then goals. Pushing first marks
// uploaded rows with their remote id before the pull checks for them, so no
// record is inserted twice.
//
// FullSync never fails; a phase that could not run contributes zero.
func (e *Engine) FullSync(ctx context.Context) Tally {
	start := time.Now()

	if _, ok := e.session.CurrentUserID(); !ok {
		e.logger.Printf("Full sync skipped: no user signed in")
		return Tally{NoUser: true}
	}

	e.logger.Printf("Starting full sync")

	var t Tally

	if res, err := e.PushPendingTransactions(ctx); err != nil {
		e.logger.Printf("WARNING: Failed to push transactions: %v", err)
	} else {
		t.TransactionsPushed = res.Count
		t.Failed += res.Failed
	}
	pulledTx := e.PullTransactions(ctx)
	t.TransactionsPulled = pulledTx.Count
	t.Failed += pulledTx.Failed

	if res, err := e.PushPendingGoals(ctx); err != nil {
		e.logger.Printf("WARNING: Failed to push goals: %v", err)
	} else {
		t.GoalsPushed = res.Count
		t.Failed += res.Failed
	}
	pulledGoals := e.PullGoals(ctx)
	t.GoalsPulled = pulledGoals.Count
	t.Failed += pulledGoals.Failed

	t.Duration = time.Since(start)

	e.logger.Printf("Full sync complete: transactions pushed=%d pulled=%d, goals pushed=%d pulled=%d, failed=%d (%v)",
		t.TransactionsPushed, t.TransactionsPulled, t.GoalsPushed, t.GoalsPulled, t.Failed, t.Duration.Round(time.Millisecond))

	e.observer.SyncCompleted(t)
	return t
}

// DeleteTransaction removes a transaction of the current user, deleting the
// server copy first when there is one. The local row is removed even if the
// server call fails. Deleting a missing row is a no-op.
func (e *Engine) DeleteTransaction(ctx context.Context, localID int64) (DeleteResult, error) {
	return deleteRecord(ctx, e, e.transactions(), localID)
}

// DeleteGoal removes a goal of the current user. See DeleteTransaction.
func (e *Engine) DeleteGoal(ctx context.Context, localID int64) (DeleteResult, error) {
	return deleteRecord(ctx, e, e.goals(), localID)
}

// ClearLocal deletes every local record of the current user. Server copies
// are untouched, so a later pull restores synced records.
func (e *Engine) ClearLocal(ctx context.Context) (transactions, goals int64, err error) {
	userID, ok := e.session.CurrentUserID()
	if !ok {
		return 0, 0, ErrNoUser
	}

	if transactions, err = e.store.DeleteAllTransactionsContext(ctx, userID); err != nil {
		return 0, 0, fmt.Errorf("failed to clear transactions: %w", err)
	}
	if goals, err = e.store.DeleteAllGoalsContext(ctx, userID); err != nil {
		return transactions, 0, fmt.Errorf("failed to clear goals: %w", err)
	}

	e.logger.Printf("Cleared local data for user %d: %d transactions, %d goals", userID, transactions, goals)
	return transactions, goals, nil
}

// retry runs fn once plus up to maxRetries more times while it fails with a
// network error.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !remote.IsRetryable(err) || attempt >= e.maxRetries {
			return err
		}

		e.logger.Printf("Retrying %s after network error (attempt %d of %d): %v", op, attempt+1, e.maxRetries, err)
		if e.retryBackoff > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(e.retryBackoff):
			}
		}
	}
}

// kind binds the generic operations to one record type. R is the local
// record, W the server's listing of it.
type kind[R any, W any] struct {
	entity model.Entity

	localID  func(R) int64
	setOwner func(R, int64)
	remoteOf func(R) (int64, bool)

	create      func(ctx context.Context, rec R) (int64, error)
	listPending func(ctx context.Context, userID int64) ([]R, error)
	get         func(ctx context.Context, localID, userID int64) (R, error)
	findRemote  func(ctx context.Context, remoteID, userID int64) (R, error)
	insertSync  func(ctx context.Context, rec R, remoteID int64) (int64, error)
	markSynced  func(ctx context.Context, localID, remoteID int64) error
	deleteLocal func(ctx context.Context, localID, userID int64) error

	push         func(ctx context.Context, rec R) (int64, error)
	list         func(ctx context.Context) ([]W, error)
	wireID       func(W) int64
	toLocal      func(W, int64) (R, error)
	deleteRemote func(ctx context.Context, remoteID int64) error
}

func (e *Engine) transactions() kind[*model.Transaction, model.RemoteTransaction] {
	return kind[*model.Transaction, model.RemoteTransaction]{
		entity:   model.EntityTransaction,
		localID:  func(tx *model.Transaction) int64 { return tx.LocalID },
		setOwner: func(tx *model.Transaction, id int64) { tx.OwnerUserID = id },
		remoteOf: func(tx *model.Transaction) (int64, bool) {
			if !tx.Synced || tx.RemoteID == nil {
				return 0, false
			}
			return *tx.RemoteID, true
		},

		create:      e.store.CreateTransactionContext,
		listPending: e.store.ListPendingTransactionsContext,
		get:         e.store.GetTransactionContext,
		findRemote:  e.store.FindTransactionByRemoteIDContext,
		insertSync:  e.store.InsertSyncedTransactionContext,
		markSynced:  e.store.MarkTransactionSyncedContext,
		deleteLocal: e.store.DeleteTransactionContext,

		push: func(ctx context.Context, tx *model.Transaction) (int64, error) {
			return e.remote.CreateTransaction(ctx, tx.Payload())
		},
		list:         e.remote.ListTransactions,
		wireID:       func(rt model.RemoteTransaction) int64 { return rt.ID },
		toLocal:      model.RemoteTransaction.ToLocal,
		deleteRemote: e.remote.DeleteTransaction,
	}
}

func (e *Engine) goals() kind[*model.Goal, model.RemoteGoal] {
	return kind[*model.Goal, model.RemoteGoal]{
		entity:   model.EntityGoal,
		localID:  func(g *model.Goal) int64 { return g.LocalID },
		setOwner: func(g *model.Goal, id int64) { g.OwnerUserID = id },
		remoteOf: func(g *model.Goal) (int64, bool) {
			if !g.Synced || g.RemoteID == nil {
				return 0, false
			}
			return *g.RemoteID, true
		},

		create:      e.store.CreateGoalContext,
		listPending: e.store.ListPendingGoalsContext,
		get:         e.store.GetGoalContext,
		findRemote:  e.store.FindGoalByRemoteIDContext,
		insertSync:  e.store.InsertSyncedGoalContext,
		markSynced:  e.store.MarkGoalSyncedContext,
		deleteLocal: e.store.DeleteGoalContext,

		push: func(ctx context.Context, g *model.Goal) (int64, error) {
			return e.remote.CreateGoal(ctx, g.Payload())
		},
		list:         e.remote.ListGoals,
		wireID:       func(rg model.RemoteGoal) int64 { return rg.ID },
		toLocal:      model.RemoteGoal.ToLocal,
		deleteRemote: e.remote.DeleteGoal,
	}
}

func addRecord[R, W any](ctx context.Context, e *Engine, k kind[R, W], rec R, opts AddOptions) (Outcome, error) {
	userID, ok := e.session.CurrentUserID()
	if !ok {
		return Outcome{}, ErrNoUser
	}
	k.setOwner(rec, userID)

	localID, err := k.create(ctx, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to save %s: %w", k.entity, err)
	}

	if !opts.Eligible {
		out := Pending(k.entity, localID, ErrNotEligible)
		e.observer.RecordPending(out)
		return out, nil
	}

	out := pushOne(ctx, e, k, rec)
	if out.IsSynced() && opts.OnSynced != nil {
		opts.OnSynced(out)
	}
	return out, nil
}

// pushOne uploads one stored record and marks it synced on success.
func pushOne[R, W any](ctx context.Context, e *Engine, k kind[R, W], rec R) Outcome {
	localID := k.localID(rec)

	var remoteID int64
	err := e.retry(ctx, fmt.Sprintf("push %s %d", k.entity, localID), func() error {
		var err error
		remoteID, err = k.push(ctx, rec)
		return err
	})
	if err != nil {
		if errors.Is(err, remote.ErrConflict) {
			e.logger.Printf("WARNING: Server rejected %s %d as a duplicate: %v", k.entity, localID, err)
		} else {
			e.logger.Printf("WARNING: Failed to push %s %d: %v", k.entity, localID, err)
		}
		out := Pending(k.entity, localID, err)
		e.observer.RecordPending(out)
		return out
	}

	// The server now has the record. If marking fails the row stays pending
	// and a later push uploads it again.
	if err := k.markSynced(ctx, localID, remoteID); err != nil {
		e.logger.Printf("WARNING: %s %d pushed as remote %d but not marked synced: %v", k.entity, localID, remoteID, err)
		out := Pending(k.entity, localID, err)
		e.observer.RecordPending(out)
		return out
	}

	out := Synced(k.entity, localID, remoteID)
	e.observer.RecordSynced(out)
	return out
}

func pushPending[R, W any](ctx context.Context, e *Engine, k kind[R, W]) (*BatchResult, error) {
	result := newBatch(k.entity)

	userID, ok := e.session.CurrentUserID()
	if !ok {
		return result, nil
	}

	pending, err := k.listPending(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to list pending %ss: %w", k.entity, err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	for _, rec := range pending {
		result.add(pushOne(ctx, e, k, rec))
	}

	e.logger.Printf("Pushed %ss: %d synced, %d pending", k.entity, result.Count, result.Failed)
	return result, nil
}

func pull[R, W any](ctx context.Context, e *Engine, k kind[R, W]) *BatchResult {
	result := newBatch(k.entity)

	userID, ok := e.session.CurrentUserID()
	if !ok {
		return result
	}

	records, err := k.list(ctx)
	if err != nil {
		e.logger.Printf("WARNING: Failed to fetch %ss from server: %v", k.entity, err)
		return result
	}

	for _, w := range records {
		remoteID := k.wireID(w)

		_, err := k.findRemote(ctx, remoteID, userID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Printf("WARNING: Failed to look up remote %s %d: %v", k.entity, remoteID, err)
			result.add(Pending(k.entity, 0, err))
			continue
		}

		rec, err := k.toLocal(w, userID)
		if err != nil {
			e.logger.Printf("WARNING: Skipping remote %s %d: %v", k.entity, remoteID, err)
			result.add(Pending(k.entity, 0, err))
			continue
		}

		localID, err := k.insertSync(ctx, rec, remoteID)
		if err != nil {
			e.logger.Printf("WARNING: Failed to store remote %s %d: %v", k.entity, remoteID, err)
			result.add(Pending(k.entity, 0, err))
			continue
		}

		result.add(Synced(k.entity, localID, remoteID))
		e.observer.RecordPulled(k.entity, localID, remoteID)
	}

	if result.Count > 0 || result.Failed > 0 {
		e.logger.Printf("Pulled %ss: %d new, %d skipped", k.entity, result.Count, result.Failed)
	}
	return result
}

func deleteRecord[R, W any](ctx context.Context, e *Engine, k kind[R, W], localID int64) (DeleteResult, error) {
	var res DeleteResult

	userID, ok := e.session.CurrentUserID()
	if !ok {
		return res, ErrNoUser
	}

	rec, err := k.get(ctx, localID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to look up %s %d: %w", k.entity, localID, err)
	}
	res.Found = true

	if remoteID, ok := k.remoteOf(rec); ok {
		err := e.retry(ctx, fmt.Sprintf("delete remote %s %d", k.entity, remoteID), func() error {
			return k.deleteRemote(ctx, remoteID)
		})
		if err != nil {
			e.logger.Printf("WARNING: Failed to delete remote %s %d (local %d): %v", k.entity, remoteID, localID, err)
			res.RemoteErr = err
		} else {
			res.RemoteDeleted = true
		}
	}

	if err := k.deleteLocal(ctx, localID, userID); err != nil {
		return res, fmt.Errorf("failed to delete %s %d: %w", k.entity, localID, err)
	}

	e.observer.RecordDeleted(k.entity, localID, res.RemoteDeleted)
	return res, nil
}
