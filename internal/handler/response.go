package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"expensetracker/internal/auth"
	"expensetracker/internal/errors"
)

// IdentityContextKey is where the token middleware stores the verified *auth.Identity.
const IdentityContextKey = "identity"

// fromError converts a service error into an HTTP error carrying the
// standard error body. The original error is kept as the internal cause.
func fromError(err error) *echo.HTTPError {
	mapped := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(mapped.StatusCode, mapped.ToErrorResponse()).SetInternal(err)
}

func badRequest(message string, cause error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: message,
		Code:  "INVALID_INPUT",
	}).SetInternal(cause)
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request body", err)
	}
	if err := c.Validate(req); err != nil {
		return badRequest(err.Error(), err)
	}
	return nil
}

// currentIdentity returns the identity set by the token middleware.
func currentIdentity(c echo.Context) (auth.Identity, error) {
	identity, ok := c.Get(IdentityContextKey).(*auth.Identity)
	if !ok || identity == nil {
		return auth.Identity{}, fromError(errors.ErrMissingToken)
	}
	return *identity, nil
}
