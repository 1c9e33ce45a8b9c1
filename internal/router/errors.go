package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "expensetracker/internal/errors"
)

// NewHTTPErrorHandler renders every error as an ErrorResponse. Server errors
// are logged with the request id; debug adds the underlying cause as detail.
func NewHTTPErrorHandler(log *slog.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp, cause := resolveError(err)

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Any("error", cause),
			)
		}
		if debug && cause != nil && cause.Error() != resp.Error {
			resp.Detail = cause.Error()
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, resp)
		}
		if writeErr != nil {
			log.Warn("write error response", slog.Any("error", writeErr))
		}
	}
}

func resolveError(err error) (int, apperrors.ErrorResponse, error) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		mapped := apperrors.MapErrorToHTTP(err)
		return mapped.StatusCode, mapped.ToErrorResponse(), err
	}

	cause := he.Internal
	if cause == nil {
		cause = err
	}

	switch msg := he.Message.(type) {
	case apperrors.ErrorResponse:
		return he.Code, msg, cause
	case string:
		return he.Code, apperrors.ErrorResponse{Error: msg, Code: apperrors.CodeForStatus(he.Code)}, cause
	default:
		return he.Code, apperrors.ErrorResponse{
			Error: http.StatusText(he.Code),
			Code:  apperrors.CodeForStatus(he.Code),
		}, cause
	}
}
