package server

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/fintrack/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist for the user.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write:
	// a second account for an email or a second goal for a month.
	ErrDuplicate = errors.New("already exists")
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository is the server's persistence. Every record query is scoped by
// the owning user.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, email, passwordHash string) (int64, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	CreateToken(ctx context.Context, token string, userID int64) error
	UserIDByToken(ctx context.Context, token string) (int64, error)

	CreateTransaction(ctx context.Context, userID int64, tx *model.Transaction) (int64, error)
	ListTransactions(ctx context.Context, userID int64) ([]model.RemoteTransaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) error

	CreateGoal(ctx context.Context, userID int64, g *model.Goal) (int64, error)
	ListGoals(ctx context.Context, userID int64) ([]model.RemoteGoal, error)
	DeleteGoal(ctx context.Context, userID, id int64) error
}
