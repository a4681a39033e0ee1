package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/common/clients"
)

// ContextKey is a custom type for echo context keys to avoid collisions
type ContextKey string

const (
	// UsernameKey is the echo context key for the authenticated username
	UsernameKey ContextKey = "username"

	// RoleKey is the echo context key for the caller's role
	RoleKey ContextKey = "role"
)

// Roles in ascending order of privilege. An absent X-User-Role header
// counts as viewer.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var roleRank = map[string]int{
	RoleViewer: 0,
	RoleEditor: 1,
	RoleAdmin:  2,
}

// ExtractUsername extracts the X-User-ID and X-User-Role headers into the
// echo context and the request context, so both handlers and services can
// see the caller. Identity is optional on read paths.
func ExtractUsername() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")
			role := normalizeRole(c.Request().Header.Get("X-User-Role"))

			ctx := c.Request().Context()
			if username != "" {
				c.Set(string(UsernameKey), username)
				ctx = clients.WithUserID(ctx, username)
			}
			c.Set(string(RoleKey), role)
			ctx = clients.WithUserRole(ctx, role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// ExtractUsernameStrict is the mutating-route variant: requests without an
// X-User-ID header are rejected with 401.
func ExtractUsernameStrict() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")
			if username == "" {
				return unauthorized(c, "X-User-ID header is required")
			}

			role := normalizeRole(c.Request().Header.Get("X-User-Role"))
			c.Set(string(UsernameKey), username)
			c.Set(string(RoleKey), role)

			ctx := clients.WithUserID(c.Request().Context(), username)
			ctx = clients.WithUserRole(ctx, role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRole rejects callers whose role ranks below min with 403. Stack it
// after ExtractUsername or ExtractUsernameStrict.
func RequireRole(min string) echo.MiddlewareFunc {
	minRank, ok := roleRank[min]
	if !ok {
		minRank = roleRank[RoleAdmin]
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := GetRole(c)
			if roleRank[role] < minRank {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error": map[string]interface{}{
						"code":    "FORBIDDEN",
						"message": "role " + role + " may not perform this operation, " + min + " required",
					},
				})
			}
			return next(c)
		}
	}
}

// GetUsername retrieves the username from the echo context, empty when the
// caller was anonymous
func GetUsername(c echo.Context) string {
	username := c.Get(string(UsernameKey))
	if username == nil {
		return ""
	}
	return username.(string)
}

// GetRole retrieves the caller's role, defaulting to viewer
func GetRole(c echo.Context) string {
	role := c.Get(string(RoleKey))
	if role == nil {
		return RoleViewer
	}
	return role.(string)
}

// RequireUsername ensures a username exists in context. When it is missing
// the 401 is already written and a non-nil error is returned so the caller
// can bail with `return err`; echo skips committed responses.
func RequireUsername(c echo.Context) (string, error) {
	username := GetUsername(c)
	if username == "" {
		if err := unauthorized(c, "authentication required (X-User-ID header missing)"); err != nil {
			return "", err
		}
		return "", echo.ErrUnauthorized
	}
	return username, nil
}

func normalizeRole(role string) string {
	if _, ok := roleRank[role]; !ok {
		return RoleViewer
	}
	return role
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
