// Package auth verifies bearer tokens and resolves the requesting user.
//
// Tokens are HS256 JWTs carrying an email claim. Users are auto-registered
// on the first request with an unseen email; the token's role claim is only
// honored for rows that already hold it (role changes are admin-only and out
// of band).
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

const localsUserKey = "auth_user"

// Claims is the accepted token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserRegistrar resolves an email to a user row, creating one on first sight.
type UserRegistrar interface {
	GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error)
}

// Middleware authenticates requests and stashes the resolved user in locals.
type Middleware struct {
	secret []byte
	users  UserRegistrar
}

// NewMiddleware creates an auth middleware with the given HMAC secret.
func NewMiddleware(secret string, users UserRegistrar) *Middleware {
	return &Middleware{secret: []byte(secret), users: users}
}

func (m *Middleware) verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, errors.New("token missing email claim")
	}
	return claims, nil
}

// Authenticate returns a handler that resolves the bearer token. When
// required is false, requests without an Authorization header pass through
// anonymously; a present-but-invalid token is still rejected.
func (m *Middleware) Authenticate(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			if required {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "UNAUTHORIZED",
					"message": "missing bearer token",
				})
			}
			return c.Next()
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := m.verify(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "UNAUTHORIZED",
				"message": "invalid bearer token",
			})
		}

		user, err := m.users.GetOrCreateByEmail(c.Context(), claims.Email)
		if err != nil {
			log.Error().Err(err).Str("email", claims.Email).Msg("user resolution failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "INTERNAL",
				"message": "internal server error",
			})
		}

		c.Locals(localsUserKey, user)
		return c.Next()
	}
}

// RequireAdmin rejects requests whose resolved user is not an admin.
// Must run after Authenticate(true).
func RequireAdmin(c *fiber.Ctx) error {
	user := UserFromCtx(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "UNAUTHORIZED",
			"message": "missing bearer token",
		})
	}
	if !user.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "FORBIDDEN",
			"message": "admin role required",
		})
	}
	return c.Next()
}

// UserFromCtx returns the authenticated user, or nil for anonymous requests.
func UserFromCtx(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(localsUserKey).(*model.User)
	return user
}
