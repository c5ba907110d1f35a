package libgo365

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// GraphAPIBaseURL is the base URL for Microsoft Graph API
	GraphAPIBaseURL = "https://graph.microsoft.com/v1.0"
)

// RequestObserver receives one observation per Graph request attempt
type RequestObserver interface {
	ObserveGraphRequest(method string, status int, kind ErrorKind, elapsed time.Duration)
}

// Client is a Microsoft Graph API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryPolicy
	observer   RequestObserver
	logger     *slog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBaseURL points the client at a different Graph endpoint
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithRetryPolicy overrides DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithObserver attaches a request observer, typically a metrics collector
func WithObserver(o RequestObserver) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger used for retry diagnostics
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new Microsoft Graph client authorized by ts
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    GraphAPIBaseURL,
		retry:      DefaultRetryPolicy,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request to the Microsoft Graph API
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.withRetry(ctx, http.MethodGet, func() ([]byte, error) {
		return c.doOnce(ctx, http.MethodGet, path, nil)
	})
}

// Post performs a POST request to the Microsoft Graph API
func (c *Client) Post(ctx context.Context, path string, data any) ([]byte, error) {
	return c.doJSONRequest(ctx, http.MethodPost, path, data)
}

// doJSONRequest marshals data once and sends it under the retry policy
func (c *Client) doJSONRequest(ctx context.Context, method, path string, data any) ([]byte, error) {
	var payload []byte
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		payload = jsonData
	}

	return c.withRetry(ctx, method, func() ([]byte, error) {
		return c.doOnce(ctx, method, path, payload)
	})
}

// doOnce performs a single request attempt
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	op := method + " " + path
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-request-id", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, KindTransient, start)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, resp.StatusCode, KindTransient, start)
		return nil, &Error{Kind: KindTransient, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newResponseError(op, resp, respBody)
		c.observe(method, resp.StatusCode, apiErr.Kind, start)
		return nil, apiErr
	}

	c.observe(method, resp.StatusCode, "", start)
	return respBody, nil
}

func (c *Client) observe(method string, status int, kind ErrorKind, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveGraphRequest(method, status, kind, time.Since(start))
	}
}

// User is a directory user as returned by /me and /users
type User struct {
	ID                string `json:"id,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	Mail              string `json:"mail,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// Email returns the user's mail address, falling back to the principal name
func (u *User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// GetMe retrieves the current user's profile
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	data, err := c.Get(ctx, "/me")
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &user, nil
}
