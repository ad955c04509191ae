package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a savings target for one calendar month.
//
// At most one goal may exist per (owner, month, year). Only the server
// enforces this; the client pushes and tolerates the rejection.
type Goal struct {
	// ===== Bookkeeping =====
	LocalID     int64  `json:"local_id" yaml:"local_id"`
	RemoteID    *int64 `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	OwnerUserID int64  `json:"owner_user_id" yaml:"owner_user_id"`
	Synced      bool   `json:"synced" yaml:"synced"`

	// ===== Domain fields =====
	TargetAmount decimal.Decimal `json:"target_amount" yaml:"target_amount"`
	TargetMonth  int             `json:"target_month" yaml:"target_month" validate:"min=1,max=12"`
	TargetYear   int             `json:"target_year" yaml:"target_year" validate:"min=1970,max=9999"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
}

// Validate checks the domain fields.
func (g *Goal) Validate() error {
	if err := validateStruct(g); err != nil {
		return err
	}
	if !g.TargetAmount.IsPositive() {
		return fmt.Errorf("target_amount must be positive (got %s)", g.TargetAmount)
	}
	return nil
}

// Period returns the goal's month as "YYYY-MM".
func (g *Goal) Period() string {
	return fmt.Sprintf("%04d-%02d", g.TargetYear, g.TargetMonth)
}

// Payload returns the wire representation of the domain fields only.
func (g *Goal) Payload() GoalPayload {
	return GoalPayload{
		TargetAmount: json.Number(g.TargetAmount.String()),
		TargetMonth:  g.TargetMonth,
		TargetYear:   g.TargetYear,
	}
}

// GoalPayload is the request body for POST /goals.
type GoalPayload struct {
	TargetAmount json.Number `json:"target_amount" binding:"required"`
	TargetMonth  int         `json:"target_month" binding:"required,min=1,max=12"`
	TargetYear   int         `json:"target_year" binding:"required,min=1970,max=9999"`
}

// Decode converts the payload into a Goal without bookkeeping fields.
func (p GoalPayload) Decode() (*Goal, error) {
	amount, err := decimal.NewFromString(p.TargetAmount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid target_amount %q: %w", p.TargetAmount, err)
	}
	g := &Goal{
		TargetAmount: amount,
		TargetMonth:  p.TargetMonth,
		TargetYear:   p.TargetYear,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// RemoteGoal is a goal as listed by GET /goals.
type RemoteGoal struct {
	ID int64 `json:"id"`
	GoalPayload
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ToLocal converts a remote record into a synced local record for owner.
// The server's creation time is kept when present.
func (r RemoteGoal) ToLocal(owner int64) (*Goal, error) {
	g, err := r.GoalPayload.Decode()
	if err != nil {
		return nil, fmt.Errorf("remote goal %d: %w", r.ID, err)
	}
	id := r.ID
	g.RemoteID = &id
	g.OwnerUserID = owner
	g.Synced = true
	if r.CreatedAt != nil {
		g.CreatedAt = r.CreatedAt.UTC()
	} else {
		g.CreatedAt = time.Now().UTC()
	}
	return g, nil
}
