// Package client is a typed HTTP client for the expense tracker API. It
// remembers the login in a SessionStore and forgets it as soon as the server
// rejects the token or the token's expiry passes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expensetracker/internal/auth"
	"expensetracker/internal/model"
)

// ErrNotLoggedIn is returned by authenticated calls when no usable session exists.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// Client wraps interactions with the expense tracker API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      SessionStore
	now        func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock replaces time.Now for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New constructs a client for baseURL. A nil store keeps the session in memory.
func New(baseURL string, store SessionStore, opts ...Option) *Client {
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

// Register creates a new account and returns its id. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	var resp struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", credentials{username, password}, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.UserID, nil
}

// Login authenticates and stores the resulting session.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", credentials{username, password}, &resp); err != nil {
		return nil, err
	}

	session, err := sessionFromToken(resp.Token)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout forgets the stored session. Tokens are stateless, so nothing is sent.
func (c *Client) Logout() error {
	return c.store.Clear()
}

// Session returns the stored session, clearing it first if it has expired.
func (c *Client) Session() (*Session, error) {
	session, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotLoggedIn
	}
	if session.Expired(c.now()) {
		if err := c.store.Clear(); err != nil {
			return nil, err
		}
		return nil, ErrNotLoggedIn
	}
	return session, nil
}

// Me returns the identity the server sees for the stored token.
func (c *Client) Me(ctx context.Context) (*auth.Identity, error) {
	var identity auth.Identity
	if err := c.authed(ctx, http.MethodGet, "/api/auth/me", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// ListExpenses returns the caller's expenses, most recent first.
func (c *Client) ListExpenses(ctx context.Context) ([]model.Expense, error) {
	var resp struct {
		Data []model.Expense `json:"data"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/expenses", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []model.Expense{}
	}
	return resp.Data, nil
}

// CreateExpense adds an expense dated now by the server.
func (c *Client) CreateExpense(ctx context.Context, description string, amount decimal.Decimal) (*model.Expense, error) {
	body := struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}{description, amount}

	var resp struct {
		Data model.Expense `json:"data"`
	}
	if err := c.authed(ctx, http.MethodPost, "/api/expenses", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DeleteExpense removes one of the caller's expenses and returns it.
func (c *Client) DeleteExpense(ctx context.Context, id string) (*model.Expense, error) {
	var resp struct {
		Data model.Expense `json:"data"`
	}
	if err := c.authed(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Summary returns the count and total of the caller's expenses.
func (c *Client) Summary(ctx context.Context) (*model.Summary, error) {
	var summary model.Summary
	if err := c.authed(ctx, http.MethodGet, "/api/expenses/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) authed(ctx context.Context, method, path string, body, out interface{}) error {
	session, err := c.Session()
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, session.Token, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		if clearErr := c.store.Clear(); clearErr != nil {
			return errors.Join(err, clearErr)
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sessionFromToken reads username and expiry from the token without
// verifying it; the client does not hold the signing secret.
func sessionFromToken(token string) (*Session, error) {
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	expiresAt := claims.Expiry()
	if expiresAt.IsZero() {
		return nil, errors.New("parse session token: no expiry")
	}
	return &Session{
		Token:     token,
		Username:  claims.Username,
		ExpiresAt: expiresAt,
	}, nil
}
