package remote

import (
	"context"
	"net/http"
)

// Credentials is the body of the auth endpoints.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Login exchanges email and password for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

// Register creates an account and returns a bearer token for it.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*AuthResult, error) {
	var out AuthResult
	err := c.send(ctx, http.MethodPost, path, "", Credentials{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" || out.UserID == 0 {
		return nil, &Error{Kind: KindValidation, Op: "POST " + path, Message: "response carried no token"}
	}
	return &out, nil
}
