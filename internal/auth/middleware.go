package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

const principalKey = "auth_principal"

// UserLookup confirms the token subject against the user directory.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	Actor domain.Actor
}

// AuthMiddleware validates bearer tokens and resolves the actor.
type AuthMiddleware struct {
	tokens *TokenManager
	users  UserLookup
}

// NewAuthMiddleware constructs middleware. When users is non-nil the token
// subject must be an active user, and the directory's role and branch win over
// the token's.
func NewAuthMiddleware(tokens *TokenManager, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	actor := claims.Actor()

	if m.users != nil {
		user, err := m.users.GetByID(c.UserContext(), actor.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("user not found")
			}
			return apperrors.MapError(err)
		}
		if !user.IsActive {
			return apperrors.NewUnauthorized("user is inactive")
		}
		actor.Name = user.Name
		actor.Role = user.Role
		actor.BranchID = user.BranchID
		actor.SupportGroupID = user.SupportGroupID
	}

	c.Locals(principalKey, &Principal{Actor: actor})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
