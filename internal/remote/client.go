// Package remote is the HTTP/JSON client for the fintrack API server.
//
// All responses use the envelope {"success": bool, "data": ..., "error": "..."}.
// Every method takes a context; the transport timeout bounds calls whose
// context carries no deadline.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/fintrack/internal/session"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds each HTTP round trip.
	Timeout time.Duration

	// RateLimit caps requests per second. 0 disables limiting.
	RateLimit float64

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client

	// Logger receives request failures. Defaults to stderr with a [remote] prefix.
	Logger *log.Logger
}

// DefaultConfig returns the client defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:8080",
		Timeout:   10 * time.Second,
		UserAgent: "fintrack-cli",
	}
}

// Client talks to the API server on behalf of one session.
type Client struct {
	baseURL   string
	http      *http.Client
	creds     session.Credentials
	limiter   *rate.Limiter
	userAgent string
	logger    *log.Logger
	health    singleflight.Group
}

// New creates a client that authenticates with creds.
// creds may be nil for unauthenticated use (health and auth endpoints only).
func New(cfg *Config, creds session.Credentials) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		creds:     creds,
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// BaseURL returns the server root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the response wrapper shared by all endpoints.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// token returns the bearer token or fails fast without network I/O.
func (c *Client) token(op string) (string, error) {
	if c.creds == nil {
		return "", &Error{Kind: KindAuth, Op: op, Err: ErrAuth}
	}
	tok := c.creds.Token()
	if tok == "" {
		return "", &Error{Kind: KindAuth, Op: op, Err: ErrAuth}
	}
	return tok, nil
}

// do performs an authenticated request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path
	tok, err := c.token(op)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, tok, body, out)
}

// send performs a request with an optional bearer token.
func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	op := method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Op: op, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := kindForStatus(resp.StatusCode)
		if kind == KindAuth && c.creds != nil && token != "" {
			c.creds.Invalidate(token)
		}
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Kind: kind, Op: op, Status: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return &Error{Kind: KindValidation, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", decodeErr)}
	}
	if !env.Success {
		return &Error{Kind: KindValidation, Op: op, Status: resp.StatusCode, Message: env.Error}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Kind: KindValidation, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("malformed response data: %w", err)}
		}
	}
	return nil
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ServerInfo fetches /health and returns the reported status.
func (c *Client) ServerInfo(ctx context.Context) (*HealthStatus, error) {
	const op = "GET /health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var hs HealthStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&hs); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Kind: KindValidation, Op: op, Status: resp.StatusCode, Err: err}
	}
	return &hs, nil
}

// Health reports whether the server answered its liveness endpoint with 2xx.
// It never returns an error. Concurrent checks share one request.
func (c *Client) Health(ctx context.Context) bool {
	v, _, _ := c.health.Do("health", func() (interface{}, error) {
		_, err := c.ServerInfo(ctx)
		if err != nil {
			c.logger.Printf("health check failed: %v", err)
			return false, nil
		}
		return true, nil
	})
	ok, _ := v.(bool)
	return ok
}
