package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/session"
	"github.com/steveyegge/fintrack/internal/store"
)

// fakeRemote is an in-memory server for one user.
type fakeRemote struct {
	mu     gosync.Mutex
	nextID int64
	txs    map[int64]model.TransactionPayload
	goals  map[int64]model.GoalPayload

	down         bool  // every call fails with a network error
	failCreates  int   // the next n creates fail with a network error
	deleteErr    error // returned by every delete
	createCalls  int
	healthy      bool
	periodsTaken map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:       100,
		txs:          make(map[int64]model.TransactionPayload),
		goals:        make(map[int64]model.GoalPayload),
		healthy:      true,
		periodsTaken: make(map[string]bool),
	}
}

func networkErr(op string) error {
	return &remote.Error{Kind: remote.KindNetwork, Op: op, Err: errors.New("connection refused")}
}

func (f *fakeRemote) CreateTransaction(ctx context.Context, p model.TransactionPayload) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.down {
		return 0, networkErr("POST /transactions")
	}
	if f.failCreates > 0 {
		f.failCreates--
		return 0, networkErr("POST /transactions")
	}
	f.nextID++
	f.txs[f.nextID] = p
	return f.nextID, nil
}

func (f *fakeRemote) ListTransactions(ctx context.Context) ([]model.RemoteTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, networkErr("GET /transactions")
	}
	out := make([]model.RemoteTransaction, 0, len(f.txs))
	for id, p := range f.txs {
		out = append(out, model.RemoteTransaction{ID: id, TransactionPayload: p})
	}
	return out, nil
}

func (f *fakeRemote) DeleteTransaction(ctx context.Context, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return networkErr("DELETE /transactions")
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.txs, remoteID)
	return nil
}

func (f *fakeRemote) CreateGoal(ctx context.Context, p model.GoalPayload) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.down {
		return 0, networkErr("POST /goals")
	}
	period := fmt.Sprintf("%d-%d", p.TargetYear, p.TargetMonth)
	if f.periodsTaken[period] {
		return 0, &remote.Error{Kind: remote.KindConflict, Op: "POST /goals", Status: 409, Message: "goal already exists for this month"}
	}
	f.periodsTaken[period] = true
	f.nextID++
	f.goals[f.nextID] = p
	return f.nextID, nil
}

func (f *fakeRemote) ListGoals(ctx context.Context) ([]model.RemoteGoal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, networkErr("GET /goals")
	}
	out := make([]model.RemoteGoal, 0, len(f.goals))
	for id, p := range f.goals {
		out = append(out, model.RemoteGoal{ID: id, GoalPayload: p})
	}
	return out, nil
}

func (f *fakeRemote) DeleteGoal(ctx context.Context, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return networkErr("DELETE /goals")
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.goals, remoteID)
	return nil
}

func (f *fakeRemote) Health(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy && !f.down
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

// seedTransaction puts a record on the server that no device has seen.
func (f *fakeRemote) seedTransaction(desc string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tx := newTransaction("7.00", desc)
	f.txs[f.nextID] = tx.Payload()
	return f.nextID
}

func (f *fakeRemote) transactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs)
}

// recordingObserver counts events.
type recordingObserver struct {
	mu      gosync.Mutex
	synced  int
	pending int
	pulled  int
	deleted int
	tallies []Tally
}

func (r *recordingObserver) RecordSynced(Outcome) {
	r.mu.Lock()
	r.synced++
	r.mu.Unlock()
}

func (r *recordingObserver) RecordPending(Outcome) {
	r.mu.Lock()
	r.pending++
	r.mu.Unlock()
}

func (r *recordingObserver) RecordPulled(model.Entity, int64, int64) {
	r.mu.Lock()
	r.pulled++
	r.mu.Unlock()
}

func (r *recordingObserver) RecordDeleted(model.Entity, int64, bool) {
	r.mu.Lock()
	r.deleted++
	r.mu.Unlock()
}

func (r *recordingObserver) SyncCompleted(t Tally) {
	r.mu.Lock()
	r.tallies = append(r.tallies, t)
	r.mu.Unlock()
}

type testEnv struct {
	db       *store.DB
	remote   *fakeRemote
	session  *session.Static
	engine   *Engine
	observer *recordingObserver
}

func setupTestEngine(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:       db,
		remote:   newFakeRemote(),
		session:  session.NewStatic(1, "token"),
		observer: &recordingObserver{},
	}
	env.engine = New(db, env.remote, env.session, &Config{
		Logger:   log.New(io.Discard, "", 0),
		Observer: env.observer,
	})
	return env
}

func newTransaction(amount, desc string) *model.Transaction {
	return &model.Transaction{
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Kind:        model.KindExpense,
		Category:    "misc",
		OccurredAt:  model.NewDate(2024, time.May, 10),
	}
}

func newGoal(month, year int) *model.Goal {
	return &model.Goal{
		TargetAmount: decimal.NewFromInt(250),
		TargetMonth:  month,
		TargetYear:   year,
	}
}

func (env *testEnv) listTransactions(t *testing.T) []*model.Transaction {
	t.Helper()
	txs, err := env.db.ListTransactions(1)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	return txs
}

var online = AddOptions{Eligible: true}
var offline = AddOptions{Eligible: false}

func TestAddTransaction_StoredRegardlessOfConnectivity(t *testing.T) {
	tests := []struct {
		name       string
		eligible   bool
		down       bool
		wantSynced bool
	}{
		{name: "online", eligible: true, wantSynced: true},
		{name: "not eligible", eligible: false, wantSynced: false},
		{name: "eligible but server down", eligible: true, down: true, wantSynced: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEngine(t)
			env.remote.setDown(tt.down)

			out, err := env.engine.AddTransaction(context.Background(), newTransaction("5", "tea"), AddOptions{Eligible: tt.eligible})
			if err != nil {
				t.Fatalf("AddTransaction() failed: %v", err)
			}
			if out.LocalID <= 0 {
				t.Fatalf("AddTransaction() local id = %d", out.LocalID)
			}

			txs := env.listTransactions(t)
			if len(txs) != 1 || txs[0].LocalID != out.LocalID {
				t.Fatalf("list = %v, want row %d", txs, out.LocalID)
			}
			if txs[0].OwnerUserID != 1 {
				t.Errorf("OwnerUserID = %d, want 1", txs[0].OwnerUserID)
			}

			if txs[0].Synced != tt.wantSynced || out.IsSynced() != tt.wantSynced {
				t.Errorf("synced row=%v outcome=%v, want %v", txs[0].Synced, out.IsSynced(), tt.wantSynced)
			}
			if tt.wantSynced {
				if txs[0].RemoteID == nil || *txs[0].RemoteID != out.RemoteID {
					t.Errorf("RemoteID = %v, want %d", txs[0].RemoteID, out.RemoteID)
				}
			} else {
				if txs[0].RemoteID != nil {
					t.Errorf("RemoteID = %d, want none", *txs[0].RemoteID)
				}
				if out.Reason == nil {
					t.Error("pending outcome should carry a reason")
				}
			}
		})
	}
}

func TestAddTransaction_NotEligibleSkipsRemote(t *testing.T) {
	env := setupTestEngine(t)

	out, err := env.engine.AddTransaction(context.Background(), newTransaction("5", "tea"), offline)
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if !errors.Is(out.Reason, ErrNotEligible) {
		t.Errorf("Reason = %v, want ErrNotEligible", out.Reason)
	}
	if env.remote.createCalls != 0 {
		t.Errorf("remote create called %d times, want 0", env.remote.createCalls)
	}
}

func TestAddTransaction_CallbackOnlyOnSuccess(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	var called []Outcome
	opts := AddOptions{Eligible: true, OnSynced: func(o Outcome) { called = append(called, o) }}

	out, _ := env.engine.AddTransaction(ctx, newTransaction("1", "a"), opts)
	if len(called) != 1 || called[0].RemoteID != out.RemoteID {
		t.Fatalf("callback = %v, want one call for %v", called, out)
	}

	env.remote.setDown(true)
	env.engine.AddTransaction(ctx, newTransaction("1", "b"), opts)
	if len(called) != 1 {
		t.Errorf("callback invoked on failure")
	}
}

func TestAddTransaction_NoUser(t *testing.T) {
	env := setupTestEngine(t)
	env.session.Set(0, "")

	_, err := env.engine.AddTransaction(context.Background(), newTransaction("1", "a"), online)
	if !errors.Is(err, ErrNoUser) {
		t.Errorf("AddTransaction() error = %v, want ErrNoUser", err)
	}
}

func TestAddTransaction_LocalFailureSurfaces(t *testing.T) {
	env := setupTestEngine(t)

	_, err := env.engine.AddTransaction(context.Background(), newTransaction("-1", "bad"), online)
	if err == nil {
		t.Fatal("AddTransaction() should fail when the local write fails")
	}
	if !store.IsStorageError(err) {
		t.Errorf("error %v should wrap a storage error", err)
	}
	if env.remote.createCalls != 0 {
		t.Error("remote should not be called when the local write fails")
	}
}

func TestAddTransaction_SingleAttemptByDefault(t *testing.T) {
	env := setupTestEngine(t)
	env.remote.failCreates = 1

	out, err := env.engine.AddTransaction(context.Background(), newTransaction("1", "a"), online)
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if out.IsSynced() {
		t.Error("a single failed attempt should leave the record pending")
	}
	if env.remote.createCalls != 1 {
		t.Errorf("remote create called %d times, want exactly 1", env.remote.createCalls)
	}
}

func TestAddTransaction_RetriesWhenConfigured(t *testing.T) {
	env := setupTestEngine(t)
	env.engine = New(env.db, env.remote, env.session, &Config{
		Logger:     log.New(io.Discard, "", 0),
		MaxRetries: 2,
	})
	env.remote.failCreates = 2

	out, err := env.engine.AddTransaction(context.Background(), newTransaction("1", "a"), online)
	if err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}
	if !out.IsSynced() {
		t.Errorf("outcome = %v, want synced after retries", out)
	}
	if env.remote.createCalls != 3 {
		t.Errorf("remote create called %d times, want 3", env.remote.createCalls)
	}
}

func TestAddGoal_DuplicatePeriodStaysPending(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.remote.periodsTaken["2024-5"] = true

	out, err := env.engine.AddGoal(ctx, newGoal(5, 2024), online)
	if err != nil {
		t.Fatalf("AddGoal() should not surface the server rejection: %v", err)
	}
	if out.IsSynced() {
		t.Fatal("duplicate goal should not sync")
	}
	if !errors.Is(out.Reason, remote.ErrConflict) || !errors.Is(out.Reason, remote.ErrValidation) {
		t.Errorf("Reason = %v, want a conflict that is also a validation error", out.Reason)
	}

	goals, err := env.db.ListGoals(1)
	if err != nil {
		t.Fatalf("ListGoals() failed: %v", err)
	}
	if len(goals) != 1 || goals[0].Synced || goals[0].RemoteID != nil {
		t.Errorf("goals = %+v, want one pending row", goals)
	}
}

func TestPushPending_OfflineScenario(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	env.remote.setDown(true)

	for i := 0; i < 3; i++ {
		if _, err := env.engine.AddTransaction(ctx, newTransaction("2", fmt.Sprintf("offline %d", i)), offline); err != nil {
			t.Fatalf("AddTransaction() failed: %v", err)
		}
	}

	txs := env.listTransactions(t)
	if len(txs) != 3 {
		t.Fatalf("got %d rows, want 3", len(txs))
	}
	for _, tx := range txs {
		if tx.Synced {
			t.Errorf("row %d synced while offline", tx.LocalID)
		}
	}
	if n := env.remote.transactionCount(); n != 0 {
		t.Fatalf("remote has %d records, want 0", n)
	}

	env.remote.setDown(false)
	res, err := env.engine.PushPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("PushPendingTransactions() failed: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("Count = %d, want 3", res.Count)
	}
	if n := env.remote.transactionCount(); n != 3 {
		t.Errorf("remote has %d records, want 3", n)
	}
	for _, tx := range env.listTransactions(t) {
		if !tx.Synced || tx.RemoteID == nil {
			t.Errorf("row %d not synced after push", tx.LocalID)
		}
	}
}

func TestPushPending_Idempotent(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.engine.AddTransaction(ctx, newTransaction("1", "a"), offline)
	env.engine.AddTransaction(ctx, newTransaction("1", "b"), offline)

	first, err := env.engine.PushPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("first push failed: %v", err)
	}
	second, err := env.engine.PushPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("second push failed: %v", err)
	}

	if first.Count != 2 || second.Count != 0 {
		t.Errorf("push counts = %d then %d, want 2 then 0", first.Count, second.Count)
	}
	if n := env.remote.transactionCount(); n != 2 {
		t.Errorf("remote has %d records, want 2", n)
	}
}

func TestPushPending_FailureDoesNotAbortBatch(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.engine.AddTransaction(ctx, newTransaction("1", "a"), offline)
	env.engine.AddTransaction(ctx, newTransaction("1", "b"), offline)
	env.engine.AddTransaction(ctx, newTransaction("1", "c"), offline)
	env.remote.failCreates = 1

	res, err := env.engine.PushPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("PushPendingTransactions() failed: %v", err)
	}
	if res.Count != 2 || res.Failed != 1 {
		t.Errorf("Count=%d Failed=%d, want 2 and 1", res.Count, res.Failed)
	}

	// Outcomes follow creation order; the first row hit the failure.
	if len(res.Outcomes) != 3 || res.Outcomes[0].IsSynced() || !res.Outcomes[1].IsSynced() {
		t.Errorf("outcomes = %v", res.Outcomes)
	}
	if len(res.Pending()) != 1 {
		t.Errorf("Pending() = %v, want one", res.Pending())
	}
}

func TestPushPending_NoUser(t *testing.T) {
	env := setupTestEngine(t)
	env.engine.AddTransaction(context.Background(), newTransaction("1", "a"), offline)
	env.session.Set(0, "")

	res, err := env.engine.PushPendingTransactions(context.Background())
	if err != nil {
		t.Fatalf("PushPendingTransactions() failed: %v", err)
	}
	if res.Count != 0 || env.remote.createCalls != 0 {
		t.Errorf("Count=%d calls=%d, want a no-op", res.Count, env.remote.createCalls)
	}
}

func TestPull_NewRemoteRecords(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	a := env.remote.seedTransaction("from web")
	b := env.remote.seedTransaction("from phone")

	res := env.engine.PullTransactions(ctx)
	if res.Count != 2 {
		t.Fatalf("PullTransactions() Count = %d, want 2", res.Count)
	}

	txs := env.listTransactions(t)
	if len(txs) != 2 {
		t.Fatalf("got %d rows, want 2", len(txs))
	}
	seen := map[int64]bool{}
	for _, tx := range txs {
		if !tx.Synced || tx.RemoteID == nil {
			t.Errorf("pulled row %d not synced", tx.LocalID)
			continue
		}
		if tx.OwnerUserID != 1 {
			t.Errorf("pulled row owner = %d, want 1", tx.OwnerUserID)
		}
		seen[*tx.RemoteID] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("remote ids %v, want %d and %d", seen, a, b)
	}
}

func TestPull_Idempotent(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.remote.seedTransaction("x")
	env.remote.seedTransaction("y")

	first := env.engine.PullTransactions(ctx)
	second := env.engine.PullTransactions(ctx)

	if first.Count != 2 || second.Count != 0 {
		t.Errorf("pull counts = %d then %d, want 2 then 0", first.Count, second.Count)
	}
	if n := len(env.listTransactions(t)); n != 2 {
		t.Errorf("got %d rows, want 2", n)
	}
}

func TestPull_ServerDownReturnsZero(t *testing.T) {
	env := setupTestEngine(t)
	env.remote.seedTransaction("x")
	env.remote.setDown(true)

	res := env.engine.PullTransactions(context.Background())
	if res.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Count)
	}
}

func TestFullSync_NoDuplicates(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.engine.AddTransaction(ctx, newTransaction("1", "local a"), offline)
	env.engine.AddTransaction(ctx, newTransaction("1", "local b"), offline)
	env.engine.AddGoal(ctx, newGoal(3, 2024), offline)
	env.remote.seedTransaction("remote c")

	tally := env.engine.FullSync(ctx)

	if tally.TransactionsPushed != 2 || tally.TransactionsPulled != 1 {
		t.Errorf("transactions pushed=%d pulled=%d, want 2 and 1", tally.TransactionsPushed, tally.TransactionsPulled)
	}
	if tally.GoalsPushed != 1 || tally.GoalsPulled != 0 {
		t.Errorf("goals pushed=%d pulled=%d, want 1 and 0", tally.GoalsPushed, tally.GoalsPulled)
	}
	if tally.Message() != "3 synced, 1 downloaded" {
		t.Errorf("Message() = %q", tally.Message())
	}

	txs := env.listTransactions(t)
	if len(txs) != 3 {
		t.Fatalf("got %d rows, want 3", len(txs))
	}
	remoteIDs := map[int64]int{}
	for _, tx := range txs {
		if tx.RemoteID == nil {
			t.Errorf("row %d has no remote id after full sync", tx.LocalID)
			continue
		}
		remoteIDs[*tx.RemoteID]++
	}
	for id, n := range remoteIDs {
		if n != 1 {
			t.Errorf("remote id %d stored %d times", id, n)
		}
	}

	again := env.engine.FullSync(ctx)
	if again.Message() != "already synchronized" {
		t.Errorf("second FullSync() Message() = %q, want already synchronized", again.Message())
	}

	if len(env.observer.tallies) != 2 {
		t.Errorf("observer saw %d completions, want 2", len(env.observer.tallies))
	}
}

func TestFullSync_NoUser(t *testing.T) {
	env := setupTestEngine(t)
	env.session.Set(0, "")

	tally := env.engine.FullSync(context.Background())
	if !tally.NoUser || tally.Pushed() != 0 || tally.Pulled() != 0 {
		t.Errorf("FullSync() = %+v, want zero tally with NoUser", tally)
	}
}

func TestFullSync_ServerDownNeverFails(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	env.engine.AddTransaction(ctx, newTransaction("1", "a"), offline)
	env.remote.setDown(true)

	tally := env.engine.FullSync(ctx)
	if tally.Pushed() != 0 || tally.Pulled() != 0 {
		t.Errorf("FullSync() = %+v, want zero progress", tally)
	}
	if tally.Failed != 1 {
		t.Errorf("Failed = %d, want 1", tally.Failed)
	}
}

func TestFullSync_UserSwapReadsFreshIdentity(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.engine.AddTransaction(ctx, newTransaction("1", "user one"), offline)
	env.session.Set(2, "token-2")
	env.engine.AddTransaction(ctx, newTransaction("1", "user two"), offline)

	res, err := env.engine.PushPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("PushPendingTransactions() failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("pushed %d records for user 2, want 1", res.Count)
	}

	pending, _ := env.db.ListPendingTransactionsContext(ctx, 1)
	if len(pending) != 1 {
		t.Errorf("user 1 should still have 1 pending row, got %d", len(pending))
	}
}

func TestDelete_RemoteFailureStillDeletesLocally(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	out, _ := env.engine.AddTransaction(ctx, newTransaction("9", "synced"), online)
	if !out.IsSynced() {
		t.Fatalf("setup: record not synced: %v", out)
	}
	env.remote.deleteErr = networkErr("DELETE /transactions")

	res, err := env.engine.DeleteTransaction(ctx, out.LocalID)
	if err != nil {
		t.Fatalf("DeleteTransaction() should not fail on remote error: %v", err)
	}
	if !res.Found || res.RemoteDeleted || res.RemoteErr == nil {
		t.Errorf("DeleteResult = %+v, want found with ignored remote error", res)
	}
	if n := len(env.listTransactions(t)); n != 0 {
		t.Errorf("got %d rows after delete, want 0", n)
	}
}

func TestDelete_SyncedRemovesRemoteCopy(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	out, _ := env.engine.AddTransaction(ctx, newTransaction("9", "synced"), online)

	res, err := env.engine.DeleteTransaction(ctx, out.LocalID)
	if err != nil {
		t.Fatalf("DeleteTransaction() failed: %v", err)
	}
	if !res.RemoteDeleted {
		t.Error("remote copy should be deleted")
	}
	if n := env.remote.transactionCount(); n != 0 {
		t.Errorf("remote has %d records, want 0", n)
	}
	if env.observer.deleted != 1 {
		t.Errorf("observer saw %d deletes, want 1", env.observer.deleted)
	}
}

func TestDelete_PendingSkipsRemote(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	out, _ := env.engine.AddGoal(ctx, newGoal(1, 2025), offline)
	env.remote.setDown(true)

	res, err := env.engine.DeleteGoal(ctx, out.LocalID)
	if err != nil {
		t.Fatalf("DeleteGoal() failed: %v", err)
	}
	if res.RemoteErr != nil || res.RemoteDeleted {
		t.Errorf("pending record should not touch the server: %+v", res)
	}

	goals, _ := env.db.ListGoals(1)
	if len(goals) != 0 {
		t.Errorf("got %d goals after delete, want 0", len(goals))
	}
}

func TestDelete_MissingIsNoop(t *testing.T) {
	env := setupTestEngine(t)

	res, err := env.engine.DeleteTransaction(context.Background(), 999)
	if err != nil {
		t.Fatalf("DeleteTransaction() failed: %v", err)
	}
	if res.Found {
		t.Error("Found should be false for a missing row")
	}
}

func TestClearLocal(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.engine.AddTransaction(ctx, newTransaction("1", "a"), online)
	env.engine.AddTransaction(ctx, newTransaction("1", "b"), offline)
	env.engine.AddGoal(ctx, newGoal(2, 2024), offline)

	txs, goals, err := env.engine.ClearLocal(ctx)
	if err != nil {
		t.Fatalf("ClearLocal() failed: %v", err)
	}
	if txs != 2 || goals != 1 {
		t.Errorf("ClearLocal() = (%d, %d), want (2, 1)", txs, goals)
	}
	if n := env.remote.transactionCount(); n != 1 {
		t.Errorf("server copy affected: %d records, want 1", n)
	}

	// The synced record comes back on the next pull.
	if res := env.engine.PullTransactions(ctx); res.Count != 1 {
		t.Errorf("PullTransactions() after clear = %d, want 1", res.Count)
	}
}

func TestEligibility(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	if el := env.engine.Eligibility(ctx); !el.Eligible() {
		t.Errorf("Eligibility() = %+v, want eligible", el)
	}

	env.remote.setDown(true)
	if el := env.engine.Eligibility(ctx); el.Eligible() || !el.Authenticated {
		t.Errorf("Eligibility() with server down = %+v", el)
	}

	env.remote.setDown(false)
	env.session.Invalidate(env.session.Token())
	if el := env.engine.Eligibility(ctx); el.Eligible() || el.Authenticated {
		t.Errorf("Eligibility() without token = %+v", el)
	}
}

func TestMultiObserver(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	m := MultiObserver{a, b, NopObserver{}}

	m.RecordSynced(Synced(model.EntityGoal, 1, 2))
	m.RecordPending(Pending(model.EntityGoal, 1, ErrNotEligible))
	m.SyncCompleted(Tally{})

	for i, o := range []*recordingObserver{a, b} {
		if o.synced != 1 || o.pending != 1 || len(o.tallies) != 1 {
			t.Errorf("observer %d = %+v", i, o)
		}
	}
}
