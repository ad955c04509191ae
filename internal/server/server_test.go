package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return New(repo, &Config{
		BcryptCost: bcrypt.MinCost,
		Logger:     log.New(io.Discard, "", 0),
	})
}

type envelopeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) (*httptest.ResponseRecorder, envelopeResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelopeResponse
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func register(t *testing.T, s *Server, email string) authResponse {
	t.Helper()
	w, env := doJSON(t, s, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "hunter22"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res authResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.Token)
	return res
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, Version, body.Version)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	reg := register(t, s, "Ana@Example.com")

	w, env := doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	var login authResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, reg.UserID, login.UserID)
	assert.NotEqual(t, reg.Token, login.Token)

	w, env = doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)

	w, _ = doJSON(t, s, http.MethodPost, "/auth/register", "", map[string]string{"email": "ana@example.com", "password": "another1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doJSON(t, s, http.MethodPost, "/auth/register", "", map[string]string{"email": "not-an-email", "password": "another1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireUser(t *testing.T) {
	s := newTestServer(t)

	w, env := doJSON(t, s, http.MethodGet, "/transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing bearer token", env.Error)

	w, _ = doJSON(t, s, http.MethodGet, "/transactions", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransactions_CRUD(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "a@example.com")
	other := register(t, s, "b@example.com")

	body := map[string]any{"amount": 12.5, "desc": "Pizza", "type": "expense", "category": "food", "date": "2024-03-09"}
	w, env := doJSON(t, s, http.MethodPost, "/transactions", user.Token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created createdResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Positive(t, created.ID)

	w, env = doJSON(t, s, http.MethodGet, "/transactions", user.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Pizza", list[0]["desc"])
	assert.Equal(t, "2024-03-09", list[0]["date"])

	// Other users see nothing and cannot delete it.
	_, env = doJSON(t, s, http.MethodGet, "/transactions", other.Token, nil)
	assert.JSONEq(t, `[]`, string(env.Data))
	w, _ = doJSON(t, s, http.MethodDelete, "/transactions/1", other.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = doJSON(t, s, http.MethodDelete, "/transactions/1", user.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = doJSON(t, s, http.MethodDelete, "/transactions/abc", user.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTransaction_Validation(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "a@example.com")

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing desc", body: map[string]any{"amount": 1, "type": "expense", "category": "x", "date": "2024-01-01"}},
		{name: "bad type", body: map[string]any{"amount": 1, "desc": "d", "type": "gift", "category": "x", "date": "2024-01-01"}},
		{name: "negative amount", body: map[string]any{"amount": -3, "desc": "d", "type": "income", "category": "x", "date": "2024-01-01"}},
		{name: "missing date", body: map[string]any{"amount": 1, "desc": "d", "type": "income", "category": "x"}},
		{name: "bad date", body: map[string]any{"amount": 1, "desc": "d", "type": "income", "category": "x", "date": "01/02/2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, s, http.MethodPost, "/transactions", user.Token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGoals_DuplicatePeriodConflict(t *testing.T) {
	s := newTestServer(t)
	user := register(t, s, "a@example.com")
	other := register(t, s, "b@example.com")

	body := map[string]any{"target_amount": "500.00", "target_month": 5, "target_year": 2024}

	w, _ := doJSON(t, s, http.MethodPost, "/goals", user.Token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := doJSON(t, s, http.MethodPost, "/goals", user.Token, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Error, "2024-05")

	// The same month is free for another user.
	w, _ = doJSON(t, s, http.MethodPost, "/goals", other.Token, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = doJSON(t, s, http.MethodPost, "/goals", user.Token, map[string]any{"target_amount": 1, "target_month": 13, "target_year": 2024})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, env = doJSON(t, s, http.MethodGet, "/goals", user.Token, nil)
	var goals []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &goals))
	require.Len(t, goals, 1)
	assert.Equal(t, float64(500), goals[0]["target_amount"])
	assert.NotEmpty(t, goals[0]["created_at"])
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)
	w, env := doJSON(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}
