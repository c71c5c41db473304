package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// GlobalErrorHandler maps pipeline errors to HTTP responses for the
// orchestration API.
func GlobalErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			_ = c.JSON(http.StatusBadRequest, map[string]string{"error": ve.Message, "title": "validation error"})
			return
		}

		var re *RateLimitError
		if errors.As(err, &re) {
			_ = c.JSON(http.StatusTooManyRequests, map[string]string{"error": re.Error()})
			return
		}

		var pe *PersistenceError
		if errors.As(err, &pe) {
			slog.Error("Persistence error", "op", pe.Op, "error", pe.Err)
			_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := fmt.Sprintf("%v", he.Message)
			_ = c.JSON(he.Code, map[string]string{"error": msg})
			return
		}

		slog.Error("Unhandled error", "error", err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
