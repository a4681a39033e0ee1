package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/cmd/archon/service"
	"github.com/archonhq/archon/common/logger"
)

// errorBody is the envelope every non-2xx response carries. trace_id echoes
// the request ID so a 500 can be matched to its log line.
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	TraceID string                 `json:"trace_id,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// respondError translates a service error into its HTTP response. This is
// the only place the mapping lives; handlers call it instead of returning
// errors to echo, so nothing ever propagates past a handler.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var (
		notFound  *service.NotFoundError
		invalid   *service.ValidationError
		conflict  *service.ConflictError
		forbidden *service.ForbiddenError
		merge     *service.MergeConflictError
		limited   *service.RateLimitError
	)

	switch {
	case errors.As(err, &merge):
		// Unresolved merge conflicts are data the caller acts on, not a
		// fault: the documented 409 body, no envelope
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"status":    "conflicts",
			"conflicts": merge.Conflicts,
		})

	case errors.As(err, &notFound):
		return envelope(c, http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil)

	case errors.As(err, &invalid):
		return envelope(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", invalid.Reason, nil)

	case errors.As(err, &conflict):
		return envelope(c, http.StatusConflict, "CONFLICT", conflict.Reason, nil)

	case errors.As(err, &forbidden):
		return envelope(c, http.StatusForbidden, "FORBIDDEN", forbidden.Reason, nil)

	case errors.As(err, &limited):
		c.Response().Header().Set("Retry-After", strconv.FormatInt(limited.RetryAfterSeconds, 10))
		return envelope(c, http.StatusTooManyRequests, "RATE_LIMITED", limited.Error(), map[string]interface{}{
			"tier":                string(limited.Tier),
			"tier_description":    limited.Tier.Describe(),
			"limit":               limited.Limit,
			"retry_after_seconds": limited.RetryAfterSeconds,
		})

	default:
		// Unknown failure: log the real error, return a sanitized envelope
		log.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"trace_id", traceID(c),
			"error", err,
		)
		return envelope(c, http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil)
	}
}

// bindError reports a body that failed to parse or bind. Malformed input is
// a 400; semantically invalid input is the service layer's 422.
func bindError(c echo.Context, message string) error {
	return envelope(c, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// validateError reports a bound DTO that failed `validate:` tag checks
func validateError(c echo.Context, err error) error {
	return envelope(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
}

func envelope(c echo.Context, status int, code, message string, details map[string]interface{}) error {
	return c.JSON(status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		TraceID: traceID(c),
		Details: details,
	}})
}

func traceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
