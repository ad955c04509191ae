// Package store provides the embedded SQLite database that holds a device's
// transactions and goals.
//
// The local store is the single source of truth on the device. Every write
// lands here before any attempt to reach the server, and the sync engine only
// ever touches the synced and remote_id columns of existing rows.
//
// Architecture:
//   - Database file: ~/.fintrack/fintrack.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: transactions, goals
//   - Every row is scoped by user_id; queries never cross owners
//
// Schema changes are additive. InitSchema creates missing tables and adds
// missing columns to tables created by older versions, without dropping data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with fintrack's record operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("~/.fintrack/fintrack.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &Error{Op: "ping", Err: err}
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return &Error{Op: "close", Err: err}
	}

	db.conn = nil
	return nil
}

// boolToInt converts the synced flag for storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableID converts an optional remote id for SQL.
func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// idPointer converts a nullable SQL id back to an optional remote id.
func idPointer(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}
