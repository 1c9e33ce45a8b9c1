package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/metrics"
)

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = time.Hour

// Identity is the caller identity carried by a verified token.
type Identity struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

// Claims represents JWT claims. The user id travels in "sub". Standard "exp"
// only has second precision, so it is rounded up and the exact expiry travels
// in "exp_ns" as Unix nanoseconds.
type Claims struct {
	Username       string `json:"username"`
	ExpiresAtNanos int64  `json:"exp_ns"`
	jwt.RegisteredClaims
}

// Expiry returns the exact expiry, falling back to "exp" when "exp_ns" is absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAtNanos > 0 {
		return time.Unix(0, c.ExpiresAtNanos)
	}
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// TokenService issues and verifies HS256 session tokens. Verification is
// stateless: no store is consulted, so a token stays valid until it expires
// or the secret changes.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a TokenService.
type Option func(*TokenService)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service with the given secret.
func NewTokenService(secret, issuer string, ttl time.Duration, opts ...Option) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for the user that expires TTL from now.
func (s *TokenService) Issue(userID uuid.UUID, username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Username:       username,
		ExpiresAtNanos: expiresAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expiresAt)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	metrics.TokensIssued.Inc()
	return token, expiresAt, nil
}

func ceilSecond(t time.Time) time.Time {
	whole := t.Truncate(time.Second)
	if whole.Before(t) {
		whole = whole.Add(time.Second)
	}
	return whole
}

// Verify checks signature, issuer and expiry and returns the embedded
// identity. A token is expired once now reaches its exact expiry.
func (s *TokenService) Verify(tokenString string) (*Identity, error) {
	identity, err := s.verify(tokenString)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return identity, nil
}

func (s *TokenService) verify(tokenString string) (*Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, apperrors.ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", apperrors.ErrInvalidToken)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: username claim missing", apperrors.ErrInvalidToken)
	}
	if claims.ExpiresAtNanos <= 0 {
		return nil, fmt.Errorf("%w: exp_ns claim missing", apperrors.ErrInvalidToken)
	}
	if !s.now().Before(claims.Expiry()) {
		return nil, apperrors.ErrExpiredToken
	}

	return &Identity{UserID: userID, Username: claims.Username}, nil
}
