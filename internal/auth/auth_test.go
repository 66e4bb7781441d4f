package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

const testSecret = "test-secret"

// mockUserRegistrar is a mock implementation of UserRegistrar.
type mockUserRegistrar struct {
	getOrCreateFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserRegistrar) GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, email)
	}
	return &model.User{ID: "user_001", Email: email, Role: model.RoleUser}, nil
}

func signToken(t *testing.T, secret, email string) string {
	t.Helper()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func setupAuthTestApp(registrar *mockUserRegistrar, required bool) *fiber.App {
	app := fiber.New()
	m := NewMiddleware(testSecret, registrar)
	app.Get("/protected", m.Authenticate(required), func(c *fiber.Ctx) error {
		user := UserFromCtx(c)
		if user == nil {
			return c.SendString("anonymous")
		}
		return c.SendString(user.Email)
	})
	return app
}

func TestAuthenticate_ValidToken(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, true)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "alice@example.com"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, true)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, true)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "alice@example.com"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_MissingEmailClaim(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, true)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, ""))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	claims := Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	app := setupAuthTestApp(&mockUserRegistrar{}, true)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, reqErr := app.Test(req)
	require.NoError(t, reqErr)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_OptionalAllowsAnonymous(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, false)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticate_OptionalStillRejectsBadToken(t *testing.T) {
	app := setupAuthTestApp(&mockUserRegistrar{}, false)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_RegistrarFailure(t *testing.T) {
	registrar := &mockUserRegistrar{
		getOrCreateFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	app := setupAuthTestApp(registrar, true)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "alice@example.com"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "admin allowed", role: model.RoleAdmin, want: fiber.StatusOK},
		{name: "user forbidden", role: model.RoleUser, want: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registrar := &mockUserRegistrar{
				getOrCreateFn: func(ctx context.Context, email string) (*model.User, error) {
					return &model.User{ID: "user_001", Email: email, Role: tt.role}, nil
				},
			}
			app := fiber.New()
			m := NewMiddleware(testSecret, registrar)
			app.Get("/admin", m.Authenticate(true), RequireAdmin, func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "admin@example.com"))

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireAdmin_Anonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", RequireAdmin, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
