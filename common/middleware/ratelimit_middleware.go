package middleware

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service to the shared secret to bypass
// rate limits.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		expectedSecret = "default-internal-secret-change-in-prod" // Fallback for dev
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimitMiddleware checks the service-wide rate limit. Protects
// the whole API from being overwhelmed; fails open when the limiter is
// unreachable.
func GlobalRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				// Fail open for availability
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "service is experiencing high load, try again later", result)
			}

			return next(c)
		}
	}
}

// UserRateLimitMiddleware checks per-user rate limits. Requires the
// username to be in context already (ExtractUsername); anonymous requests
// pass through untouched.
func UserRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			username, ok := c.Get("username").(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := rateLimiter.CheckUserLimit(c.Request().Context(), username, limit, 60)
			if err != nil {
				// Fail open for availability
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "request quota exceeded, wait before trying again", result)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, message string, result *ratelimit.Result) error {
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "RATE_LIMITED",
			"message": message,
			"details": map[string]interface{}{
				"limit":               result.Limit,
				"window":              "60 seconds",
				"current_count":       result.CurrentCount,
				"retry_after_seconds": result.RetryAfterSeconds,
			},
		},
	})
}
