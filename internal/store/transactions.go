package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
)

const transactionColumns = `id, amount, description, kind, category, occurred_at, user_id, synced, remote_id`

// CreateTransaction inserts a new unsynced transaction and returns its local id.
func (db *DB) CreateTransaction(tx *model.Transaction) (int64, error) {
	return db.CreateTransactionContext(context.Background(), tx)
}

// CreateTransactionContext inserts a new unsynced transaction with context support.
//
// synced and remote_id are always written as 0/NULL regardless of the values
// on tx. On success tx.LocalID is set.
func (db *DB) CreateTransactionContext(ctx context.Context, tx *model.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, &Error{Op: "create transaction", Err: fmt.Errorf("invalid transaction: %w", err)}
	}

	id, err := db.insertTransaction(ctx, tx, false, nil)
	if err != nil {
		return 0, err
	}

	tx.LocalID = id
	tx.Synced = false
	tx.RemoteID = nil
	return id, nil
}

// InsertSyncedTransactionContext inserts a transaction pulled from the server.
// The row is stored with synced=1 and the given remote id.
func (db *DB) InsertSyncedTransactionContext(ctx context.Context, tx *model.Transaction, remoteID int64) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, &Error{Op: "insert synced transaction", Err: fmt.Errorf("invalid transaction: %w", err)}
	}

	id, err := db.insertTransaction(ctx, tx, true, &remoteID)
	if err != nil {
		return 0, err
	}

	tx.LocalID = id
	tx.Synced = true
	tx.RemoteID = &remoteID
	return id, nil
}

func (db *DB) insertTransaction(ctx context.Context, tx *model.Transaction, synced bool, remoteID *int64) (int64, error) {
	query := `
	INSERT INTO transactions (
		amount, description, kind, category, occurred_at,
		user_id, synced, remote_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		tx.Amount.String(),
		tx.Description,
		string(tx.Kind),
		tx.Category,
		tx.OccurredAt.String(),
		tx.OwnerUserID,
		boolToInt(synced),
		nullableID(remoteID),
	)
	if err != nil {
		return 0, &Error{Op: "insert transaction", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &Error{Op: "insert transaction", Err: err}
	}
	return id, nil
}

// ListTransactions returns all transactions of userID, newest first.
// The result is never nil.
func (db *DB) ListTransactions(userID int64) ([]*model.Transaction, error) {
	return db.ListTransactionsContext(context.Background(), userID)
}

// ListTransactionsContext is ListTransactions with context support.
func (db *DB) ListTransactionsContext(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
	FROM transactions
	WHERE user_id = ?
	ORDER BY occurred_at DESC, id DESC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, &Error{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListPendingTransactionsContext returns the unsynced transactions of userID
// in creation order.
func (db *DB) ListPendingTransactionsContext(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
	FROM transactions
	WHERE user_id = ? AND synced = 0
	ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, &Error{Op: "list pending transactions", Err: err}
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetTransactionContext returns the transaction with localID owned by userID.
// Returns ErrNotFound if there is none.
func (db *DB) GetTransactionContext(ctx context.Context, localID, userID int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
	FROM transactions
	WHERE id = ? AND user_id = ?`

	return db.queryTransaction(ctx, "get transaction", query, localID, userID)
}

// FindTransactionByRemoteIDContext returns the local row mirroring remoteID.
// Returns ErrNotFound if the remote record has not been seen on this device.
func (db *DB) FindTransactionByRemoteIDContext(ctx context.Context, remoteID, userID int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
	FROM transactions
	WHERE remote_id = ? AND user_id = ?
	LIMIT 1`

	return db.queryTransaction(ctx, "find transaction by remote id", query, remoteID, userID)
}

func (db *DB) queryTransaction(ctx context.Context, op, query string, args ...any) (*model.Transaction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNotFound
	}
	return txs[0], nil
}

// MarkTransactionSyncedContext records the server-assigned id for localID.
// Calling it again with the same arguments is a no-op.
func (db *DB) MarkTransactionSyncedContext(ctx context.Context, localID, remoteID int64) error {
	query := `UPDATE transactions SET synced = 1, remote_id = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, remoteID, localID); err != nil {
		return &Error{Op: fmt.Sprintf("mark transaction %d synced", localID), Err: err}
	}
	return nil
}

// DeleteTransaction removes a transaction owned by userID.
// Returns nil if the row doesn't exist (idempotent).
func (db *DB) DeleteTransaction(localID, userID int64) error {
	return db.DeleteTransactionContext(context.Background(), localID, userID)
}

// DeleteTransactionContext is DeleteTransaction with context support.
func (db *DB) DeleteTransactionContext(ctx context.Context, localID, userID int64) error {
	query := `DELETE FROM transactions WHERE id = ? AND user_id = ?`
	if _, err := db.conn.ExecContext(ctx, query, localID, userID); err != nil {
		return &Error{Op: fmt.Sprintf("delete transaction %d", localID), Err: err}
	}
	return nil
}

// DeleteAllTransactionsContext removes every transaction owned by userID and
// returns how many rows were deleted.
func (db *DB) DeleteAllTransactionsContext(ctx context.Context, userID int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, &Error{Op: "delete all transactions", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountTransactionsContext returns the total and pending transaction counts of userID.
func (db *DB) CountTransactionsContext(ctx context.Context, userID int64) (total, pending int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)
	FROM transactions WHERE user_id = ?`
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(&total, &pending); err != nil {
		return 0, 0, &Error{Op: "count transactions", Err: err}
	}
	return total, pending, nil
}

// scanTransactions reads every row into a non-nil slice.
func scanTransactions(rows *sql.Rows) ([]*model.Transaction, error) {
	txs := make([]*model.Transaction, 0)

	for rows.Next() {
		var (
			tx         model.Transaction
			amount     string
			kind       string
			occurredAt string
			synced     int
			remoteID   sql.NullInt64
		)

		err := rows.Scan(
			&tx.LocalID,
			&amount,
			&tx.Description,
			&kind,
			&tx.Category,
			&occurredAt,
			&tx.OwnerUserID,
			&synced,
			&remoteID,
		)
		if err != nil {
			return nil, &Error{Op: "scan transaction", Err: err}
		}

		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &Error{Op: "scan transaction", Err: fmt.Errorf("row %d: bad amount %q: %w", tx.LocalID, amount, err)}
		}
		if tx.OccurredAt, err = model.ParseDate(occurredAt); err != nil {
			return nil, &Error{Op: "scan transaction", Err: fmt.Errorf("row %d: %w", tx.LocalID, err)}
		}
		tx.Kind = model.Kind(kind)
		tx.Synced = synced != 0
		tx.RemoteID = idPointer(remoteID)

		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "iterate transactions", Err: err}
	}

	return txs, nil
}
