package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
)

const goalColumns = `id, target_amount, target_month, target_year, created_at, user_id, synced, remote_id`

// CreateGoal inserts a new unsynced goal and returns its local id.
func (db *DB) CreateGoal(g *model.Goal) (int64, error) {
	return db.CreateGoalContext(context.Background(), g)
}

// CreateGoalContext inserts a new unsynced goal with context support.
// A zero CreatedAt is replaced with the current time.
//
// Duplicate (month, year) goals are accepted locally; only the server rejects them.
func (db *DB) CreateGoalContext(ctx context.Context, g *model.Goal) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, &Error{Op: "create goal", Err: fmt.Errorf("invalid goal: %w", err)}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	id, err := db.insertGoal(ctx, g, false, nil)
	if err != nil {
		return 0, err
	}

	g.LocalID = id
	g.Synced = false
	g.RemoteID = nil
	return id, nil
}

// InsertSyncedGoalContext inserts a goal pulled from the server.
func (db *DB) InsertSyncedGoalContext(ctx context.Context, g *model.Goal, remoteID int64) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, &Error{Op: "insert synced goal", Err: fmt.Errorf("invalid goal: %w", err)}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	id, err := db.insertGoal(ctx, g, true, &remoteID)
	if err != nil {
		return 0, err
	}

	g.LocalID = id
	g.Synced = true
	g.RemoteID = &remoteID
	return id, nil
}

func (db *DB) insertGoal(ctx context.Context, g *model.Goal, synced bool, remoteID *int64) (int64, error) {
	query := `
	INSERT INTO goals (
		target_amount, target_month, target_year, created_at,
		user_id, synced, remote_id
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		g.TargetAmount.String(),
		g.TargetMonth,
		g.TargetYear,
		g.CreatedAt.UTC().Format(time.RFC3339),
		g.OwnerUserID,
		boolToInt(synced),
		nullableID(remoteID),
	)
	if err != nil {
		return 0, &Error{Op: "insert goal", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &Error{Op: "insert goal", Err: err}
	}
	return id, nil
}

// ListGoals returns all goals of userID, latest period first.
func (db *DB) ListGoals(userID int64) ([]*model.Goal, error) {
	return db.ListGoalsContext(context.Background(), userID)
}

// ListGoalsContext is ListGoals with context support.
func (db *DB) ListGoalsContext(ctx context.Context, userID int64) ([]*model.Goal, error) {
	query := `SELECT ` + goalColumns + `
	FROM goals
	WHERE user_id = ?
	ORDER BY target_year DESC, target_month DESC, id DESC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, &Error{Op: "list goals", Err: err}
	}
	defer rows.Close()

	return scanGoals(rows)
}

// ListPendingGoalsContext returns the unsynced goals of userID in creation order.
func (db *DB) ListPendingGoalsContext(ctx context.Context, userID int64) ([]*model.Goal, error) {
	query := `SELECT ` + goalColumns + `
	FROM goals
	WHERE user_id = ? AND synced = 0
	ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, &Error{Op: "list pending goals", Err: err}
	}
	defer rows.Close()

	return scanGoals(rows)
}

// GetGoalContext returns the goal with localID owned by userID.
func (db *DB) GetGoalContext(ctx context.Context, localID, userID int64) (*model.Goal, error) {
	query := `SELECT ` + goalColumns + `
	FROM goals
	WHERE id = ? AND user_id = ?`

	return db.queryGoal(ctx, "get goal", query, localID, userID)
}

// FindGoalByRemoteIDContext returns the local row mirroring remoteID.
func (db *DB) FindGoalByRemoteIDContext(ctx context.Context, remoteID, userID int64) (*model.Goal, error) {
	query := `SELECT ` + goalColumns + `
	FROM goals
	WHERE remote_id = ? AND user_id = ?
	LIMIT 1`

	return db.queryGoal(ctx, "find goal by remote id", query, remoteID, userID)
}

func (db *DB) queryGoal(ctx context.Context, op, query string, args ...any) (*model.Goal, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer rows.Close()

	goals, err := scanGoals(rows)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, ErrNotFound
	}
	return goals[0], nil
}

// MarkGoalSyncedContext records the server-assigned id for localID.
func (db *DB) MarkGoalSyncedContext(ctx context.Context, localID, remoteID int64) error {
	query := `UPDATE goals SET synced = 1, remote_id = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, remoteID, localID); err != nil {
		return &Error{Op: fmt.Sprintf("mark goal %d synced", localID), Err: err}
	}
	return nil
}

// DeleteGoal removes a goal owned by userID. Missing rows are not an error.
func (db *DB) DeleteGoal(localID, userID int64) error {
	return db.DeleteGoalContext(context.Background(), localID, userID)
}

// DeleteGoalContext is DeleteGoal with context support.
func (db *DB) DeleteGoalContext(ctx context.Context, localID, userID int64) error {
	query := `DELETE FROM goals WHERE id = ? AND user_id = ?`
	if _, err := db.conn.ExecContext(ctx, query, localID, userID); err != nil {
		return &Error{Op: fmt.Sprintf("delete goal %d", localID), Err: err}
	}
	return nil
}

// DeleteAllGoalsContext removes every goal owned by userID.
func (db *DB) DeleteAllGoalsContext(ctx context.Context, userID int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ?`, userID)
	if err != nil {
		return 0, &Error{Op: "delete all goals", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountGoalsContext returns the total and pending goal counts of userID.
func (db *DB) CountGoalsContext(ctx context.Context, userID int64) (total, pending int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)
	FROM goals WHERE user_id = ?`
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(&total, &pending); err != nil {
		return 0, 0, &Error{Op: "count goals", Err: err}
	}
	return total, pending, nil
}

func scanGoals(rows *sql.Rows) ([]*model.Goal, error) {
	goals := make([]*model.Goal, 0)

	for rows.Next() {
		var (
			g         model.Goal
			amount    string
			createdAt string
			synced    int
			remoteID  sql.NullInt64
		)

		err := rows.Scan(
			&g.LocalID,
			&amount,
			&g.TargetMonth,
			&g.TargetYear,
			&createdAt,
			&g.OwnerUserID,
			&synced,
			&remoteID,
		)
		if err != nil {
			return nil, &Error{Op: "scan goal", Err: err}
		}

		if g.TargetAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, &Error{Op: "scan goal", Err: fmt.Errorf("row %d: bad target_amount %q: %w", g.LocalID, amount, err)}
		}
		// Older rows may carry a bare date.
		if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			d, derr := model.ParseDate(createdAt)
			if derr != nil {
				return nil, &Error{Op: "scan goal", Err: fmt.Errorf("row %d: bad created_at %q", g.LocalID, createdAt)}
			}
			g.CreatedAt = d.Time()
		}
		g.Synced = synced != 0
		g.RemoteID = idPointer(remoteID)

		goals = append(goals, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "iterate goals", Err: err}
	}

	return goals, nil
}
