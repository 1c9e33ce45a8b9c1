package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"expensetracker/internal/auth"
	"expensetracker/internal/cache"
	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/metrics"
	"expensetracker/internal/model"
	"expensetracker/internal/repository"
)

const (
	// DefaultListCacheTTL bounds how long a cached expense list may be served.
	DefaultListCacheTTL = 5 * time.Minute

	maxDescriptionLen = 255
)

// maxAmount is the first value that no longer fits DECIMAL(20,2).
var maxAmount = decimal.New(1, 18)

// ExpenseService performs owner-scoped expense operations. Every method takes
// the identity produced by token verification; there is no way to address
// another user's records.
type ExpenseService interface {
	List(ctx context.Context, identity auth.Identity) ([]model.Expense, error)
	Create(ctx context.Context, identity auth.Identity, description string, amount decimal.Decimal) (*model.Expense, error)
	Delete(ctx context.Context, identity auth.Identity, rawID string) (*model.Expense, error)
	Summary(ctx context.Context, identity auth.Identity) (model.Summary, error)
}

type expenseService struct {
	repo     repository.ExpenseRepository
	cache    *cache.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewExpenseService creates a new expense service. cache may be nil.
func NewExpenseService(repo repository.ExpenseRepository, cache *cache.Client, cacheTTL time.Duration) ExpenseService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultListCacheTTL
	}
	return &expenseService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Cached lists live under a per-owner generation. Writes bump the
// generation, so a fill computed from a snapshot read before the write lands
// under a key no reader will ask for again.
func (s *expenseService) generationKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("expenses:owner:%s:gen", ownerID.String())
}

func (s *expenseService) cacheKey(ownerID uuid.UUID, generation int64) string {
	return fmt.Sprintf("expenses:owner:%s:v%d", ownerID.String(), generation)
}

// invalidate retires the owner's cached list. Failures are logged, the
// stale entry then lives until its TTL runs out.
func (s *expenseService) invalidate(ctx context.Context, ownerID uuid.UUID) {
	if _, err := s.cache.Incr(ctx, s.generationKey(ownerID)); err != nil {
		slog.WarnContext(ctx, "expense list cache invalidation failed",
			slog.String("owner_id", ownerID.String()),
			slog.Any("error", err),
		)
	}
}

// List returns the caller's expenses, most recent first.
func (s *expenseService) List(ctx context.Context, identity auth.Identity) ([]model.Expense, error) {
	if identity.UserID == uuid.Nil {
		return nil, apperrors.ErrMissingToken
	}

	// The generation must be read before the database.
	generation, genErr := s.cache.Counter(ctx, s.generationKey(identity.UserID))
	key := s.cacheKey(identity.UserID, generation)

	if genErr == nil {
		if data, _ := s.cache.Get(ctx, key); data != nil {
			var cached []model.Expense
			if err := json.Unmarshal(data, &cached); err == nil {
				metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
				return cached, nil
			}
		}
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	expenses, err := s.repo.ListByOwner(ctx, identity.UserID)
	metrics.ExpenseOperationsTotal.WithLabelValues("list", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	if genErr != nil {
		return expenses, nil
	}
	if payload, err := json.Marshal(expenses); err == nil {
		_ = s.cache.Set(ctx, key, payload, s.cacheTTL)
	}
	return expenses, nil
}

// Create stores a new expense dated now and owned by the caller.
func (s *expenseService) Create(ctx context.Context, identity auth.Identity, description string, amount decimal.Decimal) (*model.Expense, error) {
	if identity.UserID == uuid.Nil {
		return nil, apperrors.ErrMissingToken
	}

	description = strings.TrimSpace(description)
	if err := validateExpense(description, amount); err != nil {
		metrics.ExpenseOperationsTotal.WithLabelValues("create", metrics.ResultFailure).Inc()
		return nil, err
	}

	expense := &model.Expense{
		OwnerID:     identity.UserID,
		Description: description,
		Amount:      amount,
		Date:        s.now().UTC(),
	}
	err := s.repo.Create(ctx, expense)
	metrics.ExpenseOperationsTotal.WithLabelValues("create", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.invalidate(ctx, identity.UserID)
	return expense, nil
}

// Delete removes one of the caller's expenses. An id that exists but
// belongs to someone else is reported exactly like a missing one.
func (s *expenseService) Delete(ctx context.Context, identity auth.Identity, rawID string) (*model.Expense, error) {
	if identity.UserID == uuid.Nil {
		return nil, apperrors.ErrMissingToken
	}

	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		metrics.ExpenseOperationsTotal.WithLabelValues("delete", metrics.ResultFailure).Inc()
		return nil, apperrors.ErrInvalidID
	}

	removed, err := s.repo.DeleteOwned(ctx, id, identity.UserID)
	metrics.ExpenseOperationsTotal.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrExpenseNotFound
		}
		return nil, fmt.Errorf("delete expense: %w", err)
	}

	s.invalidate(ctx, identity.UserID)
	return removed, nil
}

// Summary returns the count and total of the caller's expenses.
func (s *expenseService) Summary(ctx context.Context, identity auth.Identity) (model.Summary, error) {
	expenses, err := s.List(ctx, identity)
	if err != nil {
		return model.Summary{}, err
	}
	return model.Summarize(expenses), nil
}

func validateExpense(description string, amount decimal.Decimal) error {
	if description == "" {
		return fmt.Errorf("%w: description is required", apperrors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return fmt.Errorf("%w: description must be at most %d characters", apperrors.ErrInvalidInput, maxDescriptionLen)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be a positive number", apperrors.ErrInvalidInput)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most two decimal places", apperrors.ErrInvalidInput)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: amount is too large", apperrors.ErrInvalidInput)
	}
	return nil
}
