package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTx(owner int64, amount string, date model.Date) *model.Transaction {
	return &model.Transaction{
		OwnerUserID: owner,
		Amount:      decimal.RequireFromString(amount),
		Description: "coffee",
		Kind:        model.KindExpense,
		Category:    "food",
		OccurredAt:  date,
	}
}

func newGoal(owner int64, month, year int) *model.Goal {
	return &model.Goal{
		OwnerUserID:  owner,
		TargetAmount: decimal.NewFromInt(1000),
		TargetMonth:  month,
		TargetYear:   year,
	}
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, currentSchemaVersion)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.CreateTransaction(newTx(1, "5", model.NewDate(2024, time.January, 1))); err != nil {
		t.Fatalf("CreateTransaction() failed: %v", err)
	}

	if err := db.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	txs, err := db.ListTransactions(1)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("InitSchema() lost data: got %d rows, want 1", len(txs))
	}
}

// TestInitSchema_AddsMissingColumns opens a database created before rows
// carried an owner or sync state.
func TestInitSchema_AddsMissingColumns(t *testing.T) {
	path := testDBPath(t)

	legacy, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	if _, err := legacy.Exec(baseSchema); err != nil {
		t.Fatalf("create legacy tables: %v", err)
	}
	_, err = legacy.Exec(`INSERT INTO transactions (amount, description, kind, category, occurred_at)
		VALUES ('12.00', 'old rent', 'expense', 'home', '2020-01-01')`)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	legacy.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on legacy database failed: %v", err)
	}
	defer db.Close()

	cols, err := db.columnNames(context.Background(), "transactions")
	if err != nil {
		t.Fatalf("columnNames() failed: %v", err)
	}
	for _, name := range []string{"user_id", "synced", "remote_id"} {
		if !cols[name] {
			t.Errorf("column %s was not added", name)
		}
	}

	txs, err := db.ListTransactions(0)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("legacy row missing: got %d rows", len(txs))
	}
	if txs[0].Synced || txs[0].RemoteID != nil {
		t.Errorf("legacy row should be pending, got synced=%v remote=%v", txs[0].Synced, txs[0].RemoteID)
	}
	if txs[0].Description != "old rent" {
		t.Errorf("Description = %q, want %q", txs[0].Description, "old rent")
	}
}

func TestCreateTransaction_AlwaysPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tx := newTx(1, "3.50", model.NewDate(2024, time.March, 2))
	rid := int64(77)
	tx.RemoteID = &rid
	tx.Synced = true

	id, err := db.CreateTransactionContext(ctx, tx)
	if err != nil {
		t.Fatalf("CreateTransaction() failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("CreateTransaction() returned id %d", id)
	}

	got, err := db.GetTransactionContext(ctx, id, 1)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Synced || got.RemoteID != nil {
		t.Errorf("new row synced=%v remote=%v, want pending", got.Synced, got.RemoteID)
	}
	if !got.Amount.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Amount = %s, want 3.5", got.Amount)
	}
}

func TestCreateTransaction_Invalid(t *testing.T) {
	db := setupTestDB(t)

	tx := newTx(1, "0", model.NewDate(2024, time.March, 2))
	_, err := db.CreateTransaction(tx)
	if err == nil {
		t.Fatal("CreateTransaction() should reject zero amount")
	}
	if !IsStorageError(err) {
		t.Errorf("error %v should be a storage error", err)
	}
}

func TestListTransactions_OrderAndOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreate := func(tx *model.Transaction) int64 {
		t.Helper()
		id, err := db.CreateTransactionContext(ctx, tx)
		if err != nil {
			t.Fatalf("CreateTransaction() failed: %v", err)
		}
		return id
	}

	older := mustCreate(newTx(1, "1", model.NewDate(2024, time.January, 10)))
	sameDayA := mustCreate(newTx(1, "2", model.NewDate(2024, time.February, 1)))
	sameDayB := mustCreate(newTx(1, "3", model.NewDate(2024, time.February, 1)))
	mustCreate(newTx(2, "4", model.NewDate(2024, time.February, 5)))

	txs, err := db.ListTransactionsContext(ctx, 1)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}

	want := []int64{sameDayB, sameDayA, older}
	if len(txs) != len(want) {
		t.Fatalf("got %d transactions, want %d", len(txs), len(want))
	}
	for i, id := range want {
		if txs[i].LocalID != id {
			t.Errorf("position %d: id %d, want %d", i, txs[i].LocalID, id)
		}
		if txs[i].OwnerUserID != 1 {
			t.Errorf("position %d: owner %d leaked into user 1's list", i, txs[i].OwnerUserID)
		}
	}

	empty, err := db.ListTransactionsContext(ctx, 42)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListTransactions() for unknown user = %v, want empty non-nil", empty)
	}
}

func TestMarkTransactionSynced_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a, _ := db.CreateTransactionContext(ctx, newTx(1, "1", model.NewDate(2024, time.January, 1)))
	b, _ := db.CreateTransactionContext(ctx, newTx(1, "2", model.NewDate(2024, time.January, 2)))

	for i := 0; i < 2; i++ {
		if err := db.MarkTransactionSyncedContext(ctx, a, 500); err != nil {
			t.Fatalf("MarkTransactionSynced() call %d failed: %v", i+1, err)
		}
	}

	got, err := db.GetTransactionContext(ctx, a, 1)
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if !got.Synced || got.RemoteID == nil || *got.RemoteID != 500 {
		t.Errorf("after mark: synced=%v remote=%v, want synced with 500", got.Synced, got.RemoteID)
	}

	pending, err := db.ListPendingTransactionsContext(ctx, 1)
	if err != nil {
		t.Fatalf("ListPendingTransactions() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != b {
		t.Errorf("pending = %v, want only %d", pending, b)
	}

	byRemote, err := db.FindTransactionByRemoteIDContext(ctx, 500, 1)
	if err != nil {
		t.Fatalf("FindTransactionByRemoteID() failed: %v", err)
	}
	if byRemote.LocalID != a {
		t.Errorf("FindTransactionByRemoteID() = %d, want %d", byRemote.LocalID, a)
	}

	if _, err := db.FindTransactionByRemoteIDContext(ctx, 500, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup by another owner: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, _ := db.CreateTransactionContext(ctx, newTx(1, "1", model.NewDate(2024, time.January, 1)))

	// Another owner cannot delete it.
	if err := db.DeleteTransactionContext(ctx, id, 2); err != nil {
		t.Fatalf("DeleteTransaction() failed: %v", err)
	}
	if _, err := db.GetTransactionContext(ctx, id, 1); err != nil {
		t.Fatalf("row deleted by wrong owner: %v", err)
	}

	if err := db.DeleteTransactionContext(ctx, id, 1); err != nil {
		t.Fatalf("DeleteTransaction() failed: %v", err)
	}
	if _, err := db.GetTransactionContext(ctx, id, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTransaction() after delete: err = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := db.DeleteTransactionContext(ctx, id, 1); err != nil {
		t.Errorf("second DeleteTransaction() failed: %v", err)
	}
}

func TestDeleteAllAndCount(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		db.CreateTransactionContext(ctx, newTx(1, "1", model.NewDate(2024, time.January, i+1)))
	}
	db.CreateTransactionContext(ctx, newTx(2, "1", model.NewDate(2024, time.January, 1)))
	first, _ := db.ListPendingTransactionsContext(ctx, 1)
	db.MarkTransactionSyncedContext(ctx, first[0].LocalID, 9)

	total, pending, err := db.CountTransactionsContext(ctx, 1)
	if err != nil {
		t.Fatalf("CountTransactions() failed: %v", err)
	}
	if total != 3 || pending != 2 {
		t.Errorf("CountTransactions() = (%d, %d), want (3, 2)", total, pending)
	}

	n, err := db.DeleteAllTransactionsContext(ctx, 1)
	if err != nil {
		t.Fatalf("DeleteAllTransactions() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteAllTransactions() = %d, want 3", n)
	}

	total, _, _ = db.CountTransactionsContext(ctx, 2)
	if total != 1 {
		t.Errorf("other owner's rows affected: total = %d, want 1", total)
	}
}

func TestGoals_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	jan, err := db.CreateGoalContext(ctx, newGoal(1, 1, 2024))
	if err != nil {
		t.Fatalf("CreateGoal() failed: %v", err)
	}
	dec, _ := db.CreateGoalContext(ctx, newGoal(1, 12, 2023))
	mar, _ := db.CreateGoalContext(ctx, newGoal(1, 3, 2024))

	// Duplicate period is accepted locally.
	dup, err := db.CreateGoalContext(ctx, newGoal(1, 3, 2024))
	if err != nil {
		t.Fatalf("CreateGoal() duplicate period failed: %v", err)
	}

	goals, err := db.ListGoalsContext(ctx, 1)
	if err != nil {
		t.Fatalf("ListGoals() failed: %v", err)
	}
	want := []int64{dup, mar, jan, dec}
	if len(goals) != len(want) {
		t.Fatalf("got %d goals, want %d", len(goals), len(want))
	}
	for i, id := range want {
		if goals[i].LocalID != id {
			t.Errorf("position %d: id %d, want %d", i, goals[i].LocalID, id)
		}
	}
	if goals[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should default to now")
	}

	if err := db.MarkGoalSyncedContext(ctx, jan, 31); err != nil {
		t.Fatalf("MarkGoalSynced() failed: %v", err)
	}
	pending, _ := db.ListPendingGoalsContext(ctx, 1)
	if len(pending) != 3 || pending[0].LocalID != dec {
		t.Errorf("pending goals = %d (first %d), want 3 starting with %d", len(pending), pending[0].LocalID, dec)
	}

	g, err := db.FindGoalByRemoteIDContext(ctx, 31, 1)
	if err != nil {
		t.Fatalf("FindGoalByRemoteID() failed: %v", err)
	}
	if g.Period() != "2024-01" {
		t.Errorf("Period() = %q, want 2024-01", g.Period())
	}

	if err := db.DeleteGoalContext(ctx, jan, 1); err != nil {
		t.Fatalf("DeleteGoal() failed: %v", err)
	}
	if _, err := db.GetGoalContext(ctx, jan, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGoal() after delete: err = %v, want ErrNotFound", err)
	}

	total, pend, err := db.CountGoalsContext(ctx, 1)
	if err != nil {
		t.Fatalf("CountGoals() failed: %v", err)
	}
	if total != 3 || pend != 3 {
		t.Errorf("CountGoals() = (%d, %d), want (3, 3)", total, pend)
	}
}

func TestInsertSyncedGoal_KeepsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.Date(2023, time.June, 1, 12, 0, 0, 0, time.UTC)
	g := newGoal(1, 6, 2023)
	g.CreatedAt = created

	id, err := db.InsertSyncedGoalContext(ctx, g, 88)
	if err != nil {
		t.Fatalf("InsertSyncedGoal() failed: %v", err)
	}

	got, err := db.GetGoalContext(ctx, id, 1)
	if err != nil {
		t.Fatalf("GetGoal() failed: %v", err)
	}
	if !got.Synced || got.RemoteID == nil || *got.RemoteID != 88 {
		t.Errorf("synced=%v remote=%v, want synced with 88", got.Synced, got.RemoteID)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
}
