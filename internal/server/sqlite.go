package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/steveyegge/fintrack/internal/model"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
		category TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		target_amount TEXT NOT NULL,
		target_month INTEGER NOT NULL CHECK (target_month BETWEEN 1 AND 12),
		target_year INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, target_month, target_year)
	);

	CREATE INDEX IF NOT EXISTS idx_server_transactions_user ON transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_server_goals_user ON goals(user_id);
`

// SQLiteRepository stores server data in an embedded SQLite file.
type SQLiteRepository struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the server database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	var dsn string
	if path == ":memory:" {
		// One shared connection so every query sees the same in-memory database.
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteRepository{conn: conn}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure.
func isUniqueViolation(err error) bool {
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		email, passwordHash, now())
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u         User
		createdAt string
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (r *SQLiteRepository) CreateToken(ctx context.Context, token string, userID int64) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)`, token, userID, now())
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserIDByToken(ctx context.Context, token string) (int64, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx, `SELECT user_id FROM tokens WHERE token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up token: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, userID int64, tx *model.Transaction) (int64, error) {
	res, err := r.conn.ExecContext(ctx, `
		INSERT INTO transactions (user_id, amount, description, type, category, date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, tx.Amount.String(), tx.Description, string(tx.Kind), tx.Category, tx.OccurredAt.String())
	if err != nil {
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]model.RemoteTransaction, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, amount, description, type, category, date
		FROM transactions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]model.RemoteTransaction, 0)
	for rows.Next() {
		var (
			rt     model.RemoteTransaction
			amount string
			date   string
		)
		if err := rows.Scan(&rt.ID, &amount, &rt.Desc, &rt.Type, &rt.Category, &date); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		rt.Amount = json.Number(amount)
		if rt.Date, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", rt.ID, err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	return r.deleteOwned(ctx, "transactions", userID, id)
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, userID int64, g *model.Goal) (int64, error) {
	res, err := r.conn.ExecContext(ctx, `
		INSERT INTO goals (user_id, target_amount, target_month, target_year, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, g.TargetAmount.String(), g.TargetMonth, g.TargetYear, now())
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create goal: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID int64) ([]model.RemoteGoal, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, target_amount, target_month, target_year, created_at
		FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	out := make([]model.RemoteGoal, 0)
	for rows.Next() {
		var (
			rg        model.RemoteGoal
			amount    string
			createdAt string
		)
		if err := rows.Scan(&rg.ID, &amount, &rg.TargetMonth, &rg.TargetYear, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		rg.TargetAmount = json.Number(amount)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rg.CreatedAt = &t
		}
		out = append(out, rg)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, id int64) error {
	return r.deleteOwned(ctx, "goals", userID, id)
}

func (r *SQLiteRepository) deleteOwned(ctx context.Context, table string, userID, id int64) error {
	res, err := r.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, table), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
