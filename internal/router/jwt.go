package router

import (
	"errors"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"expensetracker/internal/auth"
	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/handler"
)

// RequireToken verifies the bearer token and stores the caller identity
// under handler.IdentityContextKey. Missing or malformed headers yield 401
// MISSING_TOKEN, bad tokens 401 INVALID_TOKEN and expired ones 403.
func RequireToken(tokens *auth.TokenService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  handler.IdentityContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			identity, err := tokens.Verify(token)
			if err != nil {
				return nil, err
			}
			return identity, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if !errors.Is(err, apperrors.ErrExpiredToken) && !errors.Is(err, apperrors.ErrInvalidToken) {
				// Extractor failures: no header, wrong scheme, empty value.
				err = errors.Join(apperrors.ErrMissingToken, err)
			}
			mapped := apperrors.MapErrorToHTTP(err)
			resp := mapped.ToErrorResponse()
			resp.Error = tokenMessage(mapped.Code)
			return echo.NewHTTPError(mapped.StatusCode, resp).SetInternal(err)
		},
	})
}

func tokenMessage(code string) string {
	switch code {
	case "EXPIRED_TOKEN":
		return apperrors.ErrExpiredToken.Error()
	case "INVALID_TOKEN":
		return apperrors.ErrInvalidToken.Error()
	default:
		return apperrors.ErrMissingToken.Error()
	}
}
