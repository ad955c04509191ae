package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const userIDKey = "fintrack_user_id"

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// newToken returns a random 256-bit bearer token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		s.logger.Printf("ERROR: hash password: %v", err)
		fail(c, http.StatusInternalServerError, "failed to register")
		return
	}

	ctx := c.Request.Context()
	userID, err := s.repo.CreateUser(ctx, normalizeEmail(req.Email), string(hash))
	if errors.Is(err, ErrDuplicate) {
		fail(c, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		s.logger.Printf("ERROR: create user: %v", err)
		fail(c, http.StatusInternalServerError, "failed to register")
		return
	}

	s.issueToken(c, http.StatusCreated, userID)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.repo.UserByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		fail(c, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		s.logger.Printf("ERROR: look up user: %v", err)
		fail(c, http.StatusInternalServerError, "failed to log in")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		fail(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	s.issueToken(c, http.StatusOK, user.ID)
}

func (s *Server) issueToken(c *gin.Context, status int, userID int64) {
	token, err := newToken()
	if err != nil {
		s.logger.Printf("ERROR: generate token: %v", err)
		fail(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	if err := s.repo.CreateToken(c.Request.Context(), token, userID); err != nil {
		s.logger.Printf("ERROR: store token: %v", err)
		fail(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	ok(c, status, authResponse{Token: token, UserID: userID})
}

// extractBearerToken returns the token from "Authorization: Bearer <token>".
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// requireUser rejects requests without a valid bearer token.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.repo.UserIDByToken(c.Request.Context(), token)
		if errors.Is(err, ErrNotFound) {
			fail(c, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			s.logger.Printf("ERROR: look up token: %v", err)
			fail(c, http.StatusInternalServerError, "failed to authenticate")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
