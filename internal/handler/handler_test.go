package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/auth"
	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/model"
)

type testValidator struct {
	v *validator.Validate
}

func (tv *testValidator) Validate(i interface{}) error { return tv.v.Struct(i) }

// MockAuthService is a mock implementation of AuthService.
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (string, time.Time, *model.User, error) {
	args := m.Called(ctx, username, password)
	user, _ := args.Get(2).(*model.User)
	return args.String(0), args.Get(1).(time.Time), user, args.Error(3)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, identity auth.Identity) (*model.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockExpenseService is a mock implementation of ExpenseService.
type MockExpenseService struct {
	mock.Mock
}

func (m *MockExpenseService) List(ctx context.Context, identity auth.Identity) ([]model.Expense, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Expense), args.Error(1)
}

func (m *MockExpenseService) Create(ctx context.Context, identity auth.Identity, description string, amount decimal.Decimal) (*model.Expense, error) {
	args := m.Called(ctx, identity, description, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Expense), args.Error(1)
}

func (m *MockExpenseService) Delete(ctx context.Context, identity auth.Identity, rawID string) (*model.Expense, error) {
	args := m.Called(ctx, identity, rawID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Expense), args.Error(1)
}

func (m *MockExpenseService) Summary(ctx context.Context, identity auth.Identity) (model.Summary, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(model.Summary), args.Error(1)
}

func newContext(method, target, body string, identity *auth.Identity) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = &testValidator{v: validator.New()}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if identity != nil {
		c.Set(IdentityContextKey, identity)
	}
	return c, rec
}

func assertHTTPError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, status, he.Code)
	resp, ok := he.Message.(apperrors.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, code, resp.Code)
}

func TestAuthHandler_Register(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockAuthService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "created",
			body: `{"username":"alice","password":"pw1"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Register", mock.Anything, "alice", "pw1").Return(&model.User{ID: userID, Username: "alice"}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "duplicate",
			body: `{"username":"alice","password":"pw1"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Register", mock.Anything, "alice", "pw1").Return(nil, apperrors.ErrDuplicateUsername)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "DUPLICATE_USERNAME",
		},
		{
			name:       "missing username",
			body:       `{"password":"pw1"}`,
			setupMock:  func(m *MockAuthService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name: "store failure",
			body: `{"username":"alice","password":"pw1"}`,
			setupMock: func(m *MockAuthService) {
				m.On("Register", mock.Anything, "alice", "pw1").Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			tt.setupMock(svc)
			h := NewAuthHandler(svc)

			c, rec := newContext(http.MethodPost, "/api/auth/register", tt.body, nil)
			err := h.Register(c)

			if tt.wantCode != "" {
				assertHTTPError(t, err, tt.wantStatus, tt.wantCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, rec.Code)
				assert.JSONEq(t, `{"userId":"`+userID.String()+`"}`, rec.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	svc := new(MockAuthService)
	expiresAt := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	svc.On("Login", mock.Anything, "alice", "pw1").Return("tok", expiresAt, &model.User{Username: "alice"}, nil)
	svc.On("Login", mock.Anything, "alice", "bad").Return("", time.Time{}, nil, apperrors.ErrInvalidCredentials)
	h := NewAuthHandler(svc)

	c, rec := newContext(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw1"}`, nil)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"token":"tok","expiresAt":"2024-05-01T11:00:00Z"}`, rec.Body.String())

	c, _ = newContext(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"bad"}`, nil)
	assertHTTPError(t, h.Login(c), http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestAuthHandler_Me(t *testing.T) {
	identity := &auth.Identity{UserID: uuid.New(), Username: "alice"}
	createdAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		identity   *auth.Identity
		setupMock  func(*MockAuthService)
		wantStatus int
		wantCode   string
	}{
		{
			name:     "current account",
			identity: identity,
			setupMock: func(m *MockAuthService) {
				m.On("CurrentUser", mock.Anything, *identity).
					Return(&model.User{ID: identity.UserID, Username: "alice", CreatedAt: createdAt}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:     "account gone",
			identity: identity,
			setupMock: func(m *MockAuthService) {
				m.On("CurrentUser", mock.Anything, *identity).Return(nil, apperrors.ErrInvalidToken)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_TOKEN",
		},
		{
			name:       "no identity",
			setupMock:  func(m *MockAuthService) {},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "MISSING_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			tt.setupMock(svc)
			h := NewAuthHandler(svc)

			c, rec := newContext(http.MethodGet, "/api/auth/me", "", tt.identity)
			err := h.Me(c)

			if tt.wantCode != "" {
				assertHTTPError(t, err, tt.wantStatus, tt.wantCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, rec.Code)
				assert.JSONEq(t, `{"userId":"`+identity.UserID.String()+`","username":"alice","createdAt":"2024-05-01T09:00:00Z"}`, rec.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestExpenseHandler_RequiresIdentity(t *testing.T) {
	h := NewExpenseHandler(new(MockExpenseService))

	c, _ := newContext(http.MethodGet, "/api/expenses", "", nil)
	assertHTTPError(t, h.List(c), http.StatusUnauthorized, "MISSING_TOKEN")
}

func TestExpenseHandler_Create(t *testing.T) {
	identity := &auth.Identity{UserID: uuid.New(), Username: "alice"}
	svc := new(MockExpenseService)
	svc.On("Create", mock.Anything, *identity, "coffee", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("3.5"))
	})).Return(&model.Expense{ID: uuid.New(), OwnerID: identity.UserID, Description: "coffee", Amount: decimal.RequireFromString("3.5")}, nil)
	h := NewExpenseHandler(svc)

	c, rec := newContext(http.MethodPost, "/api/expenses", `{"description":"coffee","amount":3.50}`, identity)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":3.5`)

	c, _ = newContext(http.MethodPost, "/api/expenses", `{"description":"coffee"}`, identity)
	assertHTTPError(t, h.Create(c), http.StatusBadRequest, "INVALID_INPUT")

	svc.AssertExpectations(t)
}

func TestExpenseHandler_Delete(t *testing.T) {
	identity := &auth.Identity{UserID: uuid.New(), Username: "alice"}
	svc := new(MockExpenseService)
	svc.On("Delete", mock.Anything, *identity, "bad").Return(nil, apperrors.ErrInvalidID)
	svc.On("Delete", mock.Anything, *identity, "gone").Return(nil, apperrors.ErrExpenseNotFound)
	h := NewExpenseHandler(svc)

	for id, want := range map[string]struct {
		status int
		code   string
	}{
		"bad":  {http.StatusBadRequest, "INVALID_ID"},
		"gone": {http.StatusNotFound, "NOT_FOUND"},
	} {
		c, _ := newContext(http.MethodDelete, "/api/expenses/"+id, "", identity)
		c.SetParamNames("id")
		c.SetParamValues(id)
		assertHTTPError(t, h.Delete(c), want.status, want.code)
	}
}

func TestExpenseHandler_ListAndSummary(t *testing.T) {
	identity := &auth.Identity{UserID: uuid.New(), Username: "alice"}
	svc := new(MockExpenseService)
	svc.On("List", mock.Anything, *identity).Return([]model.Expense{}, nil)
	svc.On("Summary", mock.Anything, *identity).Return(model.Summary{Count: 2, Total: decimal.RequireFromString("15.75")}, nil)
	h := NewExpenseHandler(svc)

	c, rec := newContext(http.MethodGet, "/api/expenses", "", identity)
	require.NoError(t, h.List(c))
	assert.JSONEq(t, `{"data":[],"count":0}`, rec.Body.String())

	c, rec = newContext(http.MethodGet, "/api/expenses/summary", "", identity)
	require.NoError(t, h.Summary(c))
	assert.JSONEq(t, `{"count":2,"total":15.75}`, rec.Body.String())
}
