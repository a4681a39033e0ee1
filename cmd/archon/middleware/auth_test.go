package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/archonhq/archon/common/clients"
)

func invoke(mw echo.MiddlewareFunc, req *http.Request) (echo.Context, *httptest.ResponseRecorder, bool) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)
	return c, rec, reached
}

func TestExtractUsernamePopulatesBothContexts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Role", "editor")

	c, _, reached := invoke(ExtractUsername(), req)
	if !reached {
		t.Fatal("Handler was not reached")
	}

	if got := GetUsername(c); got != "alice" {
		t.Errorf("Expected username alice, got %q", got)
	}
	if got := GetRole(c); got != "editor" {
		t.Errorf("Expected role editor, got %q", got)
	}

	// Services read identity from the request context
	userID, ok := clients.GetUserID(c.Request().Context())
	if !ok || userID != "alice" {
		t.Errorf("Expected user id in request context, got %q (%v)", userID, ok)
	}
	role, ok := clients.GetUserRole(c.Request().Context())
	if !ok || role != "editor" {
		t.Errorf("Expected role in request context, got %q (%v)", role, ok)
	}
}

func TestExtractUsernameAllowsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	c, rec, reached := invoke(ExtractUsername(), req)
	if !reached {
		t.Fatal("Anonymous request should pass through")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if got := GetUsername(c); got != "" {
		t.Errorf("Expected empty username, got %q", got)
	}
	if got := GetRole(c); got != RoleViewer {
		t.Errorf("Expected default role viewer, got %q", got)
	}
}

func TestExtractUsernameStrictRejectsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	_, rec, reached := invoke(ExtractUsernameStrict(), req)
	if reached {
		t.Fatal("Handler must not run without X-User-ID")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestUnknownRoleFallsBackToViewer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "bob")
	req.Header.Set("X-User-Role", "superuser")

	c, _, _ := invoke(ExtractUsername(), req)
	if got := GetRole(c); got != RoleViewer {
		t.Errorf("Expected unknown role to fall back to viewer, got %q", got)
	}
}

func TestRequireRoleBlocksInsufficientRank(t *testing.T) {
	e := echo.New()

	run := func(role string) (*httptest.ResponseRecorder, bool) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User-ID", "carol")
		if role != "" {
			req.Header.Set("X-User-Role", role)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		reached := false
		chain := ExtractUsernameStrict()(RequireRole(RoleEditor)(func(c echo.Context) error {
			reached = true
			return c.NoContent(http.StatusOK)
		}))
		_ = chain(c)
		return rec, reached
	}

	if rec, reached := run("viewer"); reached || rec.Code != http.StatusForbidden {
		t.Errorf("Expected viewer to get 403, got %d (reached %v)", rec.Code, reached)
	}
	if rec, reached := run(""); reached || rec.Code != http.StatusForbidden {
		t.Errorf("Expected missing role to get 403, got %d (reached %v)", rec.Code, reached)
	}
	if rec, reached := run("editor"); !reached || rec.Code != http.StatusOK {
		t.Errorf("Expected editor to pass, got %d (reached %v)", rec.Code, reached)
	}
	if rec, reached := run("admin"); !reached || rec.Code != http.StatusOK {
		t.Errorf("Expected admin to pass, got %d (reached %v)", rec.Code, reached)
	}
}

func TestRequireUsernameAfterStrictExtract(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-User-ID", "dave")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ExtractUsernameStrict()(func(c echo.Context) error {
		username, err := RequireUsername(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, username)
	})
	if err := handler(c); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Body.String() != "dave" {
		t.Errorf("Expected body dave, got %q", rec.Body.String())
	}
}
