package jwtware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipp-al/go-hipp-auth/middleware/jwtware"
)

type testClaims struct {
	sub   string
	roles []string
}

func (c testClaims) Subject() string  { return c.sub }
func (c testClaims) UserID() string   { return c.sub }
func (c testClaims) Username() string { return "user-" + c.sub }
func (c testClaims) Roles() []string  { return c.roles }

func (c testClaims) HasRole(role string) bool {
	return slices.Contains(c.roles, role)
}

func (c testClaims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// tokens maps raw token strings to the claims they validate to
func validator(tokens map[string]testClaims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
		claims, ok := tokens[raw]
		if !ok {
			return nil, errors.New("token is invalid")
		}
		return claims, nil
	})
}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected/:token?", jwtware.New(cfg), func(c *fiber.Ctx) error {
		claims, _ := c.Locals("user").(jwtware.AuthClaims)
		if claims == nil {
			return c.SendString("no claims")
		}
		return c.SendString(claims.Subject())
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func TestJWTWare_BearerHeader(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{
			"good": {sub: "42", roles: []string{"Admin"}},
		}),
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid token", header: "Bearer good", status: http.StatusOK, body: "42"},
		{name: "lower case scheme", header: "bearer good", status: http.StatusOK, body: "42"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "scheme only", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}

			status, body := doRequest(t, app, req)
			assert.Equal(t, tt.status, status)
			if tt.body != "" {
				assert.Equal(t, tt.body, body)
			}
		})
	}
}

func TestJWTWare_RequiredRoles(t *testing.T) {
	tokens := map[string]testClaims{
		"admin":   {sub: "1", roles: []string{"Admin"}},
		"driver":  {sub: "2", roles: []string{"Shofer"}},
		"both":    {sub: "3", roles: []string{"Shofer", "Menaxher"}},
		"nothing": {sub: "4"},
	}

	tests := []struct {
		name     string
		required []string
		token    string
		status   int
	}{
		{name: "empty set admits any token", required: nil, token: "nothing", status: http.StatusOK},
		{name: "single role match", required: []string{"Admin"}, token: "admin", status: http.StatusOK},
		{name: "single role mismatch", required: []string{"Admin"}, token: "driver", status: http.StatusForbidden},
		{name: "any of several", required: []string{"Admin", "Menaxher"}, token: "both", status: http.StatusOK},
		{name: "no roles in token", required: []string{"Admin"}, token: "nothing", status: http.StatusForbidden},
		{name: "invalid token is still 401", required: []string{"Admin"}, token: "forged", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(jwtware.Config{
				TokenValidator: validator(tokens),
				RequiredRoles:  tt.required,
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tt.token)

			status, _ := doRequest(t, app, req)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestJWTWare_ErrorHandlerReceivesForbidden(t *testing.T) {
	var got error
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"driver": {sub: "2", roles: []string{"Shofer"}}}),
		RequiredRoles:  []string{"Admin"},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(http.StatusTeapot)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer driver")

	status, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusTeapot, status)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "insufficient role")
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {sub: "7"}}),
		TokenLookup:    "query:auth_token,cookie:jwt,param:token",
	})

	t.Run("query", func(t *testing.T) {
		status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/protected?auth_token=good", nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "7", body)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "jwt", Value: "good"})
		status, _ := doRequest(t, app, req)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("param", func(t *testing.T) {
		status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/protected/good", nil))
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("header is not consulted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer good")
		status, _ := doRequest(t, app, req)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestJWTWare_Filter(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(nil),
		Filter: func(c *fiber.Ctx) bool {
			return c.Query("skip") == "1"
		},
	})

	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/protected?skip=1", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no claims", body)
}

func TestJWTWare_ValidationListeners(t *testing.T) {
	var seen []string
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {sub: "9"}}),
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
				seen = append(seen, claims.Subject())
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good")

	status, _ := doRequest(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"9"}, seen)
}

func TestJWTWare_MissingValidatorPanics(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}
