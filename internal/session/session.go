// Package session supplies the identity every local query is scoped by and
// the bearer credential the remote client attaches.
//
// There is no process-wide session. Callers construct a Source and pass it
// explicitly to the remote client and the sync engine, which makes it easy to
// run several simulated devices or users in one process.
package session

import "sync"

// Provider resolves the current authenticated user.
// It is consulted at the start of every sync operation, never cached.
type Provider interface {
	CurrentUserID() (int64, bool)
}

// Credentials supplies the bearer token for remote calls.
type Credentials interface {
	// Token returns the bearer token, or "" when not authenticated.
	Token() string

	// Invalidate discards the token after the server rejected it. Only a
	// current token equal to rejected is cleared, so a token saved by a
	// newer login survives a late rejection of the old one.
	Invalidate(rejected string)
}

// Source is both a Provider and Credentials.
type Source interface {
	Provider
	Credentials
}

// Static is an in-memory session. The zero value is logged out.
type Static struct {
	mu     sync.RWMutex
	userID int64
	token  string
}

// NewStatic returns a Static logged in as userID with token.
// A userID of 0 means no user.
func NewStatic(userID int64, token string) *Static {
	return &Static{userID: userID, token: token}
}

// CurrentUserID implements Provider.
func (s *Static) CurrentUserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != 0
}

// Token implements Credentials.
func (s *Static) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Invalidate implements Credentials. The user id is kept so local data
// stays visible while the user re-authenticates.
func (s *Static) Invalidate(rejected string) {
	s.mu.Lock()
	if s.token == rejected {
		s.token = ""
	}
	s.mu.Unlock()
}

// Set replaces the session, simulating a logout/login swap.
func (s *Static) Set(userID int64, token string) {
	s.mu.Lock()
	s.userID = userID
	s.token = token
	s.mu.Unlock()
}
