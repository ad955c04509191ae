package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Entity names a record kind handled by the sync engine.
type Entity string

const (
	EntityTransaction Entity = "transaction"
	EntityGoal        Entity = "goal"
)

// Kind is the direction of money for a transaction.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// ParseKind converts user input to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIncome, KindExpense:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid kind %q (want income or expense)", s)
	}
}

// Transaction is a single income or expense entry.
type Transaction struct {
	// ===== Bookkeeping =====
	LocalID     int64  `json:"local_id" yaml:"local_id"`
	RemoteID    *int64 `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	OwnerUserID int64  `json:"owner_user_id" yaml:"owner_user_id"`
	Synced      bool   `json:"synced" yaml:"synced"`

	// ===== Domain fields =====
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Description string          `json:"description" yaml:"description" validate:"required,notblank,max=500"`
	Kind        Kind            `json:"kind" yaml:"kind" validate:"required,oneof=income expense"`
	Category    string          `json:"category" yaml:"category" validate:"required,notblank,max=100"`
	OccurredAt  Date            `json:"occurred_at" yaml:"occurred_at"`
}

// Validate checks the domain fields. Bookkeeping fields are not inspected.
func (t *Transaction) Validate() error {
	if err := validateStruct(t); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive (got %s)", t.Amount)
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// SignedAmount returns the amount as a balance delta: negative for expenses.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Payload returns the wire representation of the domain fields only.
func (t *Transaction) Payload() TransactionPayload {
	return TransactionPayload{
		Amount:   json.Number(t.Amount.String()),
		Desc:     t.Description,
		Type:     t.Kind,
		Category: t.Category,
		Date:     t.OccurredAt,
	}
}

// TransactionPayload is the request body for POST /transactions.
type TransactionPayload struct {
	Amount   json.Number `json:"amount" binding:"required"`
	Desc     string      `json:"desc" binding:"required,max=500"`
	Type     Kind        `json:"type" binding:"required,oneof=income expense"`
	Category string      `json:"category" binding:"required,max=100"`
	Date     Date        `json:"date"`
}

// Decode converts the payload into a Transaction without bookkeeping fields.
func (p TransactionPayload) Decode() (*Transaction, error) {
	amount, err := decimal.NewFromString(p.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", p.Amount, err)
	}
	tx := &Transaction{
		Amount:      amount,
		Description: p.Desc,
		Kind:        p.Type,
		Category:    p.Category,
		OccurredAt:  p.Date,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// RemoteTransaction is a transaction as listed by GET /transactions.
type RemoteTransaction struct {
	ID int64 `json:"id"`
	TransactionPayload
}

// ToLocal converts a remote record into a synced local record for owner.
func (r RemoteTransaction) ToLocal(owner int64) (*Transaction, error) {
	tx, err := r.TransactionPayload.Decode()
	if err != nil {
		return nil, fmt.Errorf("remote transaction %d: %w", r.ID, err)
	}
	id := r.ID
	tx.RemoteID = &id
	tx.OwnerUserID = owner
	tx.Synced = true
	return tx, nil
}
