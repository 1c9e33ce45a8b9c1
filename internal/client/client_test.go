package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"expensetracker/internal/auth"
	"expensetracker/internal/config"
	"expensetracker/internal/db"
	"expensetracker/internal/handler"
	"expensetracker/internal/repository"
	"expensetracker/internal/router"
	"expensetracker/internal/service"
)

type serverClock struct {
	now time.Time
}

func (c *serverClock) Now() time.Time { return c.now }

func newAPIServer(t *testing.T) (*httptest.Server, *serverClock) {
	t.Helper()

	gormDB, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	clock := &serverClock{now: time.Now().Truncate(time.Second)}
	tokens := auth.NewTokenService("test-secret", "expense-tracker", time.Hour, auth.WithClock(clock.Now))
	authService := service.NewAuthService(repository.NewUserRepository(gormDB), auth.NewBcryptHasher(bcrypt.MinCost, 2), tokens)
	expenseService := service.NewExpenseService(repository.NewExpenseRepository(gormDB), nil, time.Minute)

	cfg := &config.Config{AppEnv: "test", AuthRateLimit: 100, AuthRateWindow: time.Minute}
	e := echo.New()
	router.Register(e, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), tokens,
		handler.NewAuthHandler(authService),
		handler.NewExpenseHandler(expenseService),
	)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, clock
}

func TestClient_Flow(t *testing.T) {
	srv, clock := newAPIServer(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	c := New(srv.URL, store)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	userID, err := c.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, userID)

	_, err = c.ListExpenses(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	session, err := c.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.True(t, clock.now.Add(time.Hour).Equal(session.ExpiresAt))

	// A fresh client picks the session up from the file.
	c = New(srv.URL, store)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, userID, me.UserID)

	created, err := c.CreateExpense(ctx, "coffee", decimal.RequireFromString("3.50"))
	require.NoError(t, err)
	assert.Equal(t, "3.5", created.Amount.String())
	assert.Equal(t, userID, created.OwnerID)

	expenses, err := c.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, created.ID, expenses[0].ID)

	summary, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, "3.50", summary.Total.StringFixed(2))

	removed, err := c.DeleteExpense(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed.ID)

	_, err = c.DeleteExpense(ctx, created.ID.String())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	expenses, err = c.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses)

	require.NoError(t, c.Logout())
	_, err = c.Session()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_ServerRejectionClearsSession(t *testing.T) {
	srv, clock := newAPIServer(t)
	store := &MemoryStore{}
	c := New(srv.URL, store)
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	// The server considers the token expired while the client clock does not.
	clock.now = clock.now.Add(2 * time.Hour)

	_, err = c.ListExpenses(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "EXPIRED_TOKEN", apiErr.Code)

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClient_LocalExpiryClearsSession(t *testing.T) {
	srv, _ := newAPIServer(t)
	store := &MemoryStore{}
	clientNow := time.Now()
	c := New(srv.URL, store, WithClock(func() time.Time { return clientNow }))
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	clientNow = clientNow.Add(2 * time.Hour)

	_, err = c.Summary(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClient_APIErrors(t *testing.T) {
	srv, _ := newAPIServer(t)
	c := New(srv.URL, nil)
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		call   func() error
		status int
		code   string
	}{
		{"duplicate", func() error { _, err := c.Register(ctx, "alice", "pw1"); return err }, http.StatusBadRequest, "DUPLICATE_USERNAME"},
		{"wrong password", func() error { _, err := c.Login(ctx, "alice", "nope"); return err }, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", func() error { _, err := c.Login(ctx, "bob", "pw1"); return err }, http.StatusNotFound, "USER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *APIError
			require.ErrorAs(t, tt.call(), &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestSessionFromToken_ExactExpiry(t *testing.T) {
	issuedAt := time.Date(2024, 5, 1, 10, 0, 0, 900_000_000, time.UTC)
	tokens := auth.NewTokenService("test-secret", "expense-tracker", time.Hour, auth.WithClock(func() time.Time { return issuedAt }))

	token, expiresAt, err := tokens.Issue(uuid.New(), "alice")
	require.NoError(t, err)

	session, err := sessionFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.True(t, expiresAt.Equal(session.ExpiresAt))
	assert.False(t, session.Expired(issuedAt.Add(time.Hour-100*time.Millisecond)))
	assert.True(t, session.Expired(issuedAt.Add(time.Hour)))
}
