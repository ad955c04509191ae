// Package server is a reference implementation of the fintrack API.
//
// It is what the client syncs against in development, in integration tests
// and in load tests. Records are stored through a Repository: SQLite for a
// single file deployment, Postgres otherwise.
//
// Every response except /health uses the envelope
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Version is reported by /health.
const Version = "1.0.0"

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Version overrides the reported server version.
	Version string

	// BcryptCost is the password hashing cost.
	BcryptCost int

	// Logger receives request and lifecycle logs. Defaults to stderr with a [server] prefix.
	Logger *log.Logger
}

// DefaultConfig returns the server defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:       ":8080",
		Version:    Version,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Server serves the API over a Repository.
type Server struct {
	repo   Repository
	cfg    *Config
	logger *log.Logger
	router *gin.Engine
}

// New builds the router. The caller owns repo and must close it.
func New(repo Repository, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}

	s := &Server{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())

	r.GET("/health", s.handleHealth)

	auth := r.Group("/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)

	api := r.Group("/")
	api.Use(s.requireUser())
	api.POST("/transactions", s.handleCreateTransaction)
	api.GET("/transactions", s.handleListTransactions)
	api.DELETE("/transactions/:id", s.handleDeleteTransaction)
	api.POST("/goals", s.handleCreateGoal)
	api.GET("/goals", s.handleListGoals)
	api.DELETE("/goals/:id", s.handleDeleteGoal)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "no such endpoint")
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s (version %s)", s.cfg.Addr, s.cfg.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// requestID echoes X-Request-ID or assigns one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s %d %v request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Microsecond), c.GetString("request_id"))
	}
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
