package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

type userMap map[string]*domain.User

func (u userMap) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "servicedesk", time.Hour)
	group := "sg-1"
	token, expires, err := tm.GenerateToken(domain.Actor{
		ID: "u1", Name: "Sari", Role: domain.RoleTechnician, BranchID: "b1", SupportGroupID: &group,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	actor := claims.Actor()
	assert.Equal(t, "u1", actor.ID)
	assert.Equal(t, domain.RoleTechnician, actor.Role)
	require.NotNil(t, actor.SupportGroupID)
	assert.Equal(t, "sg-1", *actor.SupportGroupID)
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", "servicedesk", time.Hour)
	token, _, err := NewTokenManager("other", "servicedesk", time.Hour).GenerateToken(domain.Actor{ID: "u1"})
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err, "wrong secret")

	token, _, err = NewTokenManager("secret", "elsewhere", time.Hour).GenerateToken(domain.Actor{ID: "u1"})
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err, "wrong issuer")

	token, _, err = tm.GenerateToken(domain.Actor{})
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err, "no subject")
}

func newApp(tm *TokenManager, users UserLookup, guard fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if de := apperrors.ToDomainError(err); de != nil && de.Code != apperrors.CodeInternal {
				return c.Status(de.HTTPStatus).SendString(de.Code)
			}
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).SendString(fe.Message)
			}
			return c.SendStatus(http.StatusInternalServerError)
		},
	})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/me", mw.Handle, guard, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.JSON(p.Actor)
	})
	return app
}

func call(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Hour)
	users := userMap{
		"u1": {ID: "u1", Role: domain.RoleAdmin, IsActive: true},
		"u2": {ID: "u2", Role: domain.RoleUser, IsActive: false},
	}
	app := newApp(tm, users, RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))

	tok := func(id string, role domain.Role) string {
		s, _, err := tm.GenerateToken(domain.Actor{ID: id, Role: role})
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, http.StatusUnauthorized, call(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, "garbage"))
	assert.Equal(t, http.StatusOK, call(t, app, tok("u1", domain.RoleUser)), "directory role wins")
	assert.Equal(t, http.StatusUnauthorized, call(t, app, tok("u2", domain.RoleAdmin)), "inactive user")
	assert.Equal(t, http.StatusUnauthorized, call(t, app, tok("ghost", domain.RoleAdmin)))
}

func TestRequireRoleWithoutDirectory(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Hour)
	app := newApp(tm, nil, RequireRole(domain.RoleAdmin))

	user, _, err := tm.GenerateToken(domain.Actor{ID: "u", Role: domain.RoleUser})
	require.NoError(t, err)
	admin, _, err := tm.GenerateToken(domain.Actor{ID: "a", Role: domain.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, call(t, app, user))
	assert.Equal(t, http.StatusOK, call(t, app, admin))
}
