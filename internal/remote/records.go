package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/steveyegge/fintrack/internal/model"
)

type createdID struct {
	ID int64 `json:"id"`
}

// CreateTransaction posts a transaction and returns its server id.
func (c *Client) CreateTransaction(ctx context.Context, p model.TransactionPayload) (int64, error) {
	var out createdID
	if err := c.do(ctx, http.MethodPost, "/transactions", p, &out); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, &Error{Kind: KindValidation, Op: "POST /transactions", Message: "response carried no id"}
	}
	return out.ID, nil
}

// ListTransactions returns every transaction the server holds for the session's user.
func (c *Client) ListTransactions(ctx context.Context) ([]model.RemoteTransaction, error) {
	out := make([]model.RemoteTransaction, 0)
	if err := c.do(ctx, http.MethodGet, "/transactions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTransaction removes a transaction by server id.
func (c *Client) DeleteTransaction(ctx context.Context, remoteID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/transactions/%d", remoteID), nil, nil)
}

// CreateGoal posts a goal and returns its server id. A second goal for the
// same month fails with a KindConflict error.
func (c *Client) CreateGoal(ctx context.Context, p model.GoalPayload) (int64, error) {
	var out createdID
	if err := c.do(ctx, http.MethodPost, "/goals", p, &out); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, &Error{Kind: KindValidation, Op: "POST /goals", Message: "response carried no id"}
	}
	return out.ID, nil
}

// ListGoals returns every goal the server holds for the session's user.
func (c *Client) ListGoals(ctx context.Context) ([]model.RemoteGoal, error) {
	out := make([]model.RemoteGoal, 0)
	if err := c.do(ctx, http.MethodGet, "/goals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGoal removes a goal by server id.
func (c *Client) DeleteGoal(ctx context.Context, remoteID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/goals/%d", remoteID), nil, nil)
}
