// Package api is a small client for the portal REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ojt-portal/portal-session/internal/autherr"
)

// DefaultBaseURL is the backend the portal talks to when none is configured.
const DefaultBaseURL = "http://localhost:5220/api"

const maxBodySize = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Tokens supplies the bearer token. Requests go out without an
	// Authorization header while it returns autherr.ErrNoToken.
	Tokens oauth2.TokenSource
	// HTTPClient overrides the underlying client; its transport is wrapped.
	HTTPClient *http.Client
}

// Client talks JSON to the portal backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	// Message is the backend's own message, empty if it sent none.
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// User is the backend's user record.
type User struct {
	UserID   *int   `json:"userId,omitempty"`
	FullName string `json:"fullname"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Token    string `json:"token,omitempty"`
}

// LoginResponse is the body of POST /user/login. Data is nil when the
// backend accepted the request but returned no user.
type LoginResponse struct {
	Data    *User  `json:"data"`
	Message string `json:"message"`
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// New creates a Client.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		hc = &c
	}
	if cfg.Tokens != nil {
		hc.Transport = &bearerTransport{source: cfg.Tokens, base: hc.Transport}
	}

	return &Client{baseURL: base, http: hc}
}

// Login posts credentials once. A non-2xx response returns *Error.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/user/login", body, &env); err != nil {
		return nil, err
	}

	resp := &LoginResponse{Message: env.Message}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return resp, nil
	}
	var u User
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return nil, fmt.Errorf("decode login data: %w", err)
	}
	resp.Data = &u
	return resp, nil
}

// GetUser fetches one user by id.
func (c *Client) GetUser(ctx context.Context, id int) (*User, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/user/"+strconv.Itoa(id), nil, &env); err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// ListUsers fetches every user.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/user/getAll", nil, &env); err != nil {
		return nil, err
	}
	var users []User
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return users, nil
	}
	if err := json.Unmarshal(env.Data, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, out *envelope) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = strings.TrimSpace(env.Message)
		}
		return apiErr
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// bearerTransport attaches the stored token to every request when there is
// one.
type bearerTransport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	tok, err := t.source.Token()
	if errors.Is(err, autherr.ErrNoToken) {
		return base.RoundTrip(req)
	}
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("bearer token: %w", err)
	}

	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return base.RoundTrip(r)
}
