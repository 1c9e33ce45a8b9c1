package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"expensetracker/internal/auth"
	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/metrics"
	"expensetracker/internal/model"
	"expensetracker/internal/repository"
)

const (
	maxUsernameLen = 64
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// AuthService handles registration, login and identity lookup.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, user *model.User, err error)
	CurrentUser(ctx context.Context, identity auth.Identity) (*model.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	hasher   auth.PasswordHasher
	tokens   *auth.TokenService
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, hasher auth.PasswordHasher, tokens *auth.TokenService) AuthService {
	return &authService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Register creates a new user with a hashed password.
func (s *authService) Register(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.register(ctx, username, password)
	metrics.RegistrationsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	return user, err
}

func (s *authService) register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be at most %d characters", apperrors.ErrInvalidInput, maxUsernameLen)
	}
	if len(password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", apperrors.ErrInvalidInput, maxPasswordBytes)
	}

	// Check if user already exists
	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, apperrors.ErrDuplicateUsername
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login authenticates a user and returns a signed session token.
func (s *authService) Login(ctx context.Context, username, password string) (string, time.Time, *model.User, error) {
	token, expiresAt, user, err := s.login(ctx, username, password)
	metrics.LoginsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	return token, expiresAt, user, err
}

func (s *authService) login(ctx context.Context, username, password string) (string, time.Time, *model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return "", time.Time{}, nil, err
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, nil, apperrors.ErrUserNotFound
		}
		return "", time.Time{}, nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.hasher.Compare(ctx, user.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("issue token: %w", err)
	}

	return token, expiresAt, user, nil
}

// CurrentUser loads the account behind a verified token. A token whose
// subject no longer exists is treated as invalid.
func (s *authService) CurrentUser(ctx context.Context, identity auth.Identity) (*model.User, error) {
	if identity.UserID == uuid.Nil {
		return nil, apperrors.ErrMissingToken
	}
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", apperrors.ErrInvalidToken)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func validateCredentials(username, password string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", apperrors.ErrInvalidInput)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", apperrors.ErrInvalidInput)
	}
	return nil
}
