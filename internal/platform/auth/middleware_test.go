package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims *Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newAuthContext(token string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	token := signToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "northside",
		Roles:    []string{"clinician"},
	})

	c := newAuthContext(token)
	var gotUser string
	var gotRoles []string
	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return nil
	})

	if err := h(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if gotUser != "user-1" {
		t.Errorf("user = %q, want user-1", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "clinician" {
		t.Errorf("roles = %v", gotRoles)
	}
	if tid, _ := c.Get("jwt_tenant_id").(string); tid != "northside" {
		t.Errorf("jwt_tenant_id = %q", tid)
	}
}

func TestJWTMiddlewareMissingHeader(t *testing.T) {
	c := newAuthContext("")
	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error { return nil })
	err := h(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddlewareExpiredToken(t *testing.T) {
	token := signToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	c := newAuthContext(token)
	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error { return nil })
	err := h(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %v", err)
	}
}

func TestJWTMiddlewareWrongKey(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte("other-key"))
	if err != nil {
		t.Fatal(err)
	}

	c := newAuthContext(s)
	h := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error { return nil })
	var httpErr *echo.HTTPError
	if err := h(c); !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong key, got %v", err)
	}
}

func TestDevAuthMiddlewareDefaults(t *testing.T) {
	c := newAuthContext("")
	h := DevAuthMiddleware()(func(c echo.Context) error {
		if UserIDFromContext(c.Request().Context()) != "dev-user" {
			t.Error("dev-user not set")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name      string
		userRoles []string
		required  []string
		wantCode  int
	}{
		{"exact match", []string{"billing"}, []string{"billing"}, 0},
		{"admin bypass", []string{"admin"}, []string{"billing"}, 0},
		{"one of several", []string{"front-desk"}, []string{"billing", "front-desk"}, 0},
		{"denied", []string{"clinician"}, []string{"billing"}, http.StatusForbidden},
		{"no roles", nil, []string{"billing"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAuthContext("")
			ctx := context.WithValue(c.Request().Context(), UserRolesKey, tt.userRoles)
			c.SetRequest(c.Request().WithContext(ctx))

			h := RequireRole(tt.required...)(func(c echo.Context) error { return nil })
			err := h(c)

			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) || httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}
