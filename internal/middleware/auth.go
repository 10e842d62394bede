package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

const (
	MsgNoToken       = "No token provided. Please log in."
	MsgTokenExpired  = "Token has expired. Please log in again."
	MsgTokenInvalid  = "Invalid token. Please log in again."
	MsgUserNotFound  = "User not found"
	MsgUserInactive  = "Account is deactivated"
	MsgAuthRequired  = "Authentication required"
	MsgAdminRequired = "Access denied. admin privileges required."
	bearerPrefix     = "Bearer "
)

// AccessVerifier checks an access token's signature and expiry.
type AccessVerifier interface {
	VerifyAccess(raw string) (utils.AccessClaims, error)
}

// UserLookup loads the account an access token names.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// Identity is the authenticated caller. Role comes from the stored user
// record, not from the token, so a role change applies immediately.
type Identity struct {
	User model.User
	Role model.Role
}

type identityKey struct{}

// IdentityFrom returns the identity attached by Authenticate.
func IdentityFrom(c echo.Context) (Identity, bool) {
	return IdentityFromContext(c.Request().Context())
}

// IdentityFromContext is IdentityFrom for code that only holds the request
// context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate validates the Bearer access token and attaches the caller's
// Identity to the request context. The refresh token ledger is never
// consulted: an access token stays usable until it expires even after
// logout.
func Authenticate(verifier AccessVerifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, bearerPrefix) {
				return apperr.Unauthenticated(MsgNoToken)
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
			if raw == "" {
				return apperr.Unauthenticated(MsgNoToken)
			}

			claims, err := verifier.VerifyAccess(raw)
			switch {
			case errors.Is(err, utils.ErrTokenExpired):
				return apperr.Unauthenticated(MsgTokenExpired)
			case err != nil:
				return apperr.Unauthenticated(MsgTokenInvalid)
			}

			ctx := c.Request().Context()
			u, err := users.GetByID(ctx, claims.ID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return apperr.NotFound(MsgUserNotFound)
			case errors.Is(err, repository.ErrInvalidID):
				return apperr.Unauthenticated(MsgTokenInvalid)
			case err != nil:
				return err
			}
			if !u.IsActive {
				return apperr.Forbidden(MsgUserInactive)
			}

			ctx = context.WithValue(ctx, identityKey{}, Identity{User: u, Role: u.Role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAdmin admits only callers whose role is admin. It must run after
// Authenticate.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apperr.Unauthenticated(MsgAuthRequired)
			}
			switch id.Role {
			case model.RoleAdmin:
				return next(c)
			case model.RoleUser:
				return apperr.Forbidden(MsgAdminRequired)
			default:
				return apperr.Forbidden(MsgAdminRequired)
			}
		}
	}
}
