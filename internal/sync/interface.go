package sync

import (
	"context"

	"github.com/steveyegge/fintrack/internal/model"
)

// Store is the local persistence the engine needs. *store.DB implements it.
type Store interface {
	CreateTransactionContext(ctx context.Context, tx *model.Transaction) (int64, error)
	ListPendingTransactionsContext(ctx context.Context, userID int64) ([]*model.Transaction, error)
	GetTransactionContext(ctx context.Context, localID, userID int64) (*model.Transaction, error)
	FindTransactionByRemoteIDContext(ctx context.Context, remoteID, userID int64) (*model.Transaction, error)
	InsertSyncedTransactionContext(ctx context.Context, tx *model.Transaction, remoteID int64) (int64, error)
	MarkTransactionSyncedContext(ctx context.Context, localID, remoteID int64) error
	DeleteTransactionContext(ctx context.Context, localID, userID int64) error
	DeleteAllTransactionsContext(ctx context.Context, userID int64) (int64, error)

	CreateGoalContext(ctx context.Context, g *model.Goal) (int64, error)
	ListPendingGoalsContext(ctx context.Context, userID int64) ([]*model.Goal, error)
	GetGoalContext(ctx context.Context, localID, userID int64) (*model.Goal, error)
	FindGoalByRemoteIDContext(ctx context.Context, remoteID, userID int64) (*model.Goal, error)
	InsertSyncedGoalContext(ctx context.Context, g *model.Goal, remoteID int64) (int64, error)
	MarkGoalSyncedContext(ctx context.Context, localID, remoteID int64) error
	DeleteGoalContext(ctx context.Context, localID, userID int64) error
	DeleteAllGoalsContext(ctx context.Context, userID int64) (int64, error)
}

// Remote is the server API the engine needs. *remote.Client implements it.
//
// Implementations must return an error for every failed call, including
// deletes; the engine decides what to ignore.
type Remote interface {
	CreateTransaction(ctx context.Context, p model.TransactionPayload) (int64, error)
	ListTransactions(ctx context.Context) ([]model.RemoteTransaction, error)
	DeleteTransaction(ctx context.Context, remoteID int64) error

	CreateGoal(ctx context.Context, p model.GoalPayload) (int64, error)
	ListGoals(ctx context.Context) ([]model.RemoteGoal, error)
	DeleteGoal(ctx context.Context, remoteID int64) error

	// Health reports liveness and never fails.
	Health(ctx context.Context) bool
}
