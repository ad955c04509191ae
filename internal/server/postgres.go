package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/steveyegge/fintrack/internal/model"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
		description TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
		category TEXT NOT NULL,
		date DATE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		target_amount NUMERIC(14, 2) NOT NULL CHECK (target_amount > 0),
		target_month INTEGER NOT NULL CHECK (target_month BETWEEN 1 AND 12),
		target_year INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, target_month, target_year)
	);

	CREATE INDEX IF NOT EXISTS idx_server_transactions_user ON transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_server_goals_user ON goals(user_id);
`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresRepository stores server data in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresDSN returns dsn, or builds one from DB_USER, DB_PASSWORD, DB_HOST,
// DB_PORT and DB_NAME after loading a .env file if one exists.
func PostgresDSN(dsn string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}

	// A missing .env is fine; the variables may already be set.
	_ = godotenv.Load()

	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}

	user, host, name := os.Getenv("DB_USER"), os.Getenv("DB_HOST"), os.Getenv("DB_NAME")
	if user == "" || host == "" || name == "" {
		return "", fmt.Errorf("postgres DSN not configured: set server.dsn, DATABASE_URL or DB_USER/DB_HOST/DB_NAME")
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, os.Getenv("DB_PASSWORD"), host, port, name), nil
}

// OpenPostgres connects a pool and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepository) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash).Scan(&id)
	if isPgUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) CreateToken(ctx context.Context, token string, userID int64) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO tokens (token, user_id) VALUES ($1, $2)`, token, userID); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UserIDByToken(ctx context.Context, token string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM tokens WHERE token = $1`, token).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up token: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) CreateTransaction(ctx context.Context, userID int64, tx *model.Transaction) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, amount, description, type, category, date)
		VALUES ($1, $2::numeric, $3, $4, $5, $6::date)
		RETURNING id`,
		userID, tx.Amount.String(), tx.Description, string(tx.Kind), tx.Category, tx.OccurredAt.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64) ([]model.RemoteTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, amount::text, description, type, category, date::text
		FROM transactions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]model.RemoteTransaction, 0)
	for rows.Next() {
		var (
			rt     model.RemoteTransaction
			amount string
			kind   string
			date   string
		)
		if err := rows.Scan(&rt.ID, &amount, &rt.Desc, &kind, &rt.Category, &date); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		rt.Amount = json.Number(amount)
		rt.Type = model.Kind(kind)
		if rt.Date, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", rt.ID, err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateGoal(ctx context.Context, userID int64, g *model.Goal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO goals (user_id, target_amount, target_month, target_year)
		VALUES ($1, $2::numeric, $3, $4)
		RETURNING id`,
		userID, g.TargetAmount.String(), g.TargetMonth, g.TargetYear).Scan(&id)
	if isPgUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create goal: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) ListGoals(ctx context.Context, userID int64) ([]model.RemoteGoal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, target_amount::text, target_month, target_year, created_at
		FROM goals WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	out := make([]model.RemoteGoal, 0)
	for rows.Next() {
		var (
			rg        model.RemoteGoal
			amount    string
			createdAt time.Time
		)
		if err := rows.Scan(&rg.ID, &amount, &rg.TargetMonth, &rg.TargetYear, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		rg.TargetAmount = json.Number(amount)
		rg.CreatedAt = &createdAt
		out = append(out, rg)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteGoal(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
