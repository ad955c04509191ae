package store

import (
	"context"
	"fmt"
)

// currentSchemaVersion is stored in PRAGMA user_version.
// 0 - tables without ownership or sync columns
// 1 - user_id, synced, remote_id added; per-owner indexes
const currentSchemaVersion = 1

const baseSchema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('income', 'expense')),
		category TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_amount TEXT NOT NULL,
		target_month INTEGER NOT NULL,
		target_year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
`

// column is a column that must exist on a table. Older databases may lack it.
type column struct {
	name string
	ddl  string
}

// requiredColumns lists the columns added after the base schema. New columns
// must be nullable or carry a default so ALTER TABLE ADD COLUMN succeeds on
// populated tables.
var requiredColumns = map[string][]column{
	"transactions": {
		{name: "user_id", ddl: "user_id INTEGER NOT NULL DEFAULT 0"},
		{name: "synced", ddl: "synced INTEGER NOT NULL DEFAULT 0"},
		{name: "remote_id", ddl: "remote_id INTEGER"},
	},
	"goals": {
		{name: "user_id", ddl: "user_id INTEGER NOT NULL DEFAULT 0"},
		{name: "synced", ddl: "synced INTEGER NOT NULL DEFAULT 0"},
		{name: "remote_id", ddl: "remote_id INTEGER"},
	},
}

// tableOrder keeps migrations deterministic.
var tableOrder = []string{"transactions", "goals"}

const indexSchema = `
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
	    ON transactions(user_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_pending
	    ON transactions(user_id, synced);
	CREATE INDEX IF NOT EXISTS idx_transactions_remote
	    ON transactions(user_id, remote_id);

	CREATE INDEX IF NOT EXISTS idx_goals_user_period
	    ON goals(user_id, target_year, target_month);
	CREATE INDEX IF NOT EXISTS idx_goals_pending
	    ON goals(user_id, synced);
	CREATE INDEX IF NOT EXISTS idx_goals_remote
	    ON goals(user_id, remote_id);
`

// InitSchema creates tables, adds missing columns and creates indexes.
// It is idempotent and never drops data.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext is InitSchema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, baseSchema); err != nil {
		return &Error{Op: "init schema", Err: err}
	}

	for _, table := range tableOrder {
		if err := db.ensureColumns(ctx, table, requiredColumns[table]); err != nil {
			return err
		}
	}

	if _, err := db.conn.ExecContext(ctx, indexSchema); err != nil {
		return &Error{Op: "create indexes", Err: err}
	}

	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return &Error{Op: "set user_version", Err: err}
	}

	return nil
}

// SchemaVersion returns the value of PRAGMA user_version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, &Error{Op: "get user_version", Err: err}
	}
	return version, nil
}

// ensureColumns adds any of cols that the table does not have yet.
func (db *DB) ensureColumns(ctx context.Context, table string, cols []column) error {
	existing, err := db.columnNames(ctx, table)
	if err != nil {
		return err
	}

	for _, col := range cols {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, col.ddl)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: fmt.Sprintf("add column %s.%s", table, col.name), Err: err}
		}
	}

	return nil
}

// columnNames returns the set of column names of table.
func (db *DB) columnNames(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, &Error{Op: "table info " + table, Err: err}
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			typ        string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, &Error{Op: "scan table info " + table, Err: err}
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "table info " + table, Err: err}
	}

	return names, nil
}
