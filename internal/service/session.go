// Package service holds the application logic between the HTTP handlers and
// the repositories: the session lifecycle, user administration and tasks.
// Every error meant for clients is an *apperr.Error; anything else is an
// internal failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

// Client-facing messages of the session endpoints.
const (
	MsgEmailTaken         = "This email is already registered"
	MsgInvalidCredentials = "Invalid email or password"
	MsgAccountDeactivated = "Account is deactivated"
	MsgRefreshRequired    = "Refresh token is required"
	MsgRefreshRevoked     = "Invalid or revoked refresh token"
	MsgRefreshExpired     = "Refresh token has expired"
	MsgRefreshInvalid     = "Invalid refresh token"
	MsgUserNotFound       = "User not found"
	MsgLoggedOut          = "Logged out successfully"
)

// RegisterInput is a registration request after syntactic validation.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string // optional, defaults to user
}

// AuthResult is returned by Register and SignIn.
type AuthResult struct {
	User   model.User
	Tokens TokenPair
}

// SessionService orchestrates register, sign-in, refresh and logout.
type SessionService struct {
	users      repository.UserStore
	ledger     repository.TokenStore
	issuer     *TokenIssuer
	bcryptCost int
	events     EventPublisher
	log        *slog.Logger
	now        func() time.Time
}

func NewSessionService(users repository.UserStore, ledger repository.TokenStore, issuer *TokenIssuer, bcryptCost int, events EventPublisher, log *slog.Logger) *SessionService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &SessionService{
		users:      users,
		ledger:     ledger,
		issuer:     issuer,
		bcryptCost: bcryptCost,
		events:     events,
		log:        log,
		now:        time.Now,
	}
}

// Register creates an account and signs it in.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (res AuthResult, err error) {
	defer func() { observe("register", err) }()

	email := model.NormalizeEmail(in.Email)
	if err := utils.CheckPasswordPolicy(in.Password); err != nil {
		return AuthResult{}, apperr.Validation(err.Error(), apperr.FieldError{Field: "password", Message: err.Error()})
	}
	role := model.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		if role, err = model.ParseRole(in.Role); err != nil {
			msg := "Please provide a valid role, must be one of user, admin"
			return AuthResult{}, apperr.Validation(msg, apperr.FieldError{Field: "role", Message: msg})
		}
	}

	switch _, err := s.users.GetByEmail(ctx, email); {
	case err == nil:
		return AuthResult{}, apperr.Conflict(MsgEmailTaken)
	case !errors.Is(err, repository.ErrNotFound):
		return AuthResult{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		// Lost a race with a concurrent registration of the same address.
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, apperr.Conflict(MsgEmailTaken)
		}
		return AuthResult{}, err
	}

	pair, err := s.issuer.Issue(ctx, u.ID, u.Role)
	if err != nil {
		return AuthResult{}, err
	}
	emit(ctx, s.events, s.log, queue.Event{Type: queue.UserRegistered, UserID: u.ID, Email: u.Email, Role: u.Role.String()})
	return AuthResult{User: u, Tokens: pair}, nil
}

// SignIn checks credentials. Unknown email and wrong password produce the
// same error; a deactivated account is reported separately.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (res AuthResult, err error) {
	defer func() { observe("signin", err) }()

	u, err := s.users.GetByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, apperr.Unauthenticated(MsgInvalidCredentials)
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !u.IsActive {
		return AuthResult{}, apperr.Forbidden(MsgAccountDeactivated)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, apperr.Unauthenticated(MsgInvalidCredentials)
	}

	pair, err := s.issuer.Issue(ctx, u.ID, u.Role)
	if err != nil {
		return AuthResult{}, err
	}
	emit(ctx, s.events, s.log, queue.Event{Type: queue.SessionSignedIn, UserID: u.ID})
	return AuthResult{User: u, Tokens: pair}, nil
}

// Refresh rotates a refresh token. The ledger and the signature are checked
// independently; the presented token is revoked before the new pair is
// issued, so a failure in between leaves the client logged out rather than
// holding two live tokens.
func (s *SessionService) Refresh(ctx context.Context, raw string) (pair TokenPair, err error) {
	defer func() { observe("refresh", err) }()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenPair{}, apperr.Validation(MsgRefreshRequired, apperr.FieldError{Field: "refreshToken", Message: MsgRefreshRequired})
	}
	hash := utils.HashToken(raw)

	ok, err := s.ledger.IsValidToken(ctx, hash)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, apperr.Unauthenticated(MsgRefreshRevoked)
	}

	claims, err := s.issuer.VerifyRefresh(raw)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return TokenPair{}, apperr.Unauthenticated(MsgRefreshExpired)
	case err != nil:
		return TokenPair{}, apperr.Unauthenticated(MsgRefreshInvalid)
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
		return TokenPair{}, apperr.NotFound(MsgUserNotFound)
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !u.IsActive {
		return TokenPair{}, apperr.Forbidden(MsgAccountDeactivated)
	}

	// A concurrent refresh with the same token may have consumed it since
	// the ledger check; only the winner gets a new pair.
	consumed, err := s.ledger.ConsumeToken(ctx, hash)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !consumed {
		return TokenPair{}, apperr.Unauthenticated(MsgRefreshRevoked)
	}
	pair, err = s.issuer.Issue(ctx, u.ID, u.Role)
	if err != nil {
		return TokenPair{}, err
	}
	emit(ctx, s.events, s.log, queue.Event{Type: queue.SessionRefreshed, UserID: u.ID})
	return pair, nil
}

// Logout revokes the presented refresh token. Unknown, expired and already
// revoked tokens are accepted silently.
func (s *SessionService) Logout(ctx context.Context, raw string) (err error) {
	defer func() { observe("logout", err) }()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.Validation(MsgRefreshRequired, apperr.FieldError{Field: "refreshToken", Message: MsgRefreshRequired})
	}
	hash := utils.HashToken(raw)
	entry, err := s.ledger.GetByHash(ctx, hash)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if err := s.ledger.RevokeToken(ctx, hash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	emit(ctx, s.events, s.log, queue.Event{Type: queue.SessionLoggedOut, UserID: entry.UserID})
	return nil
}

// RevokeAll revokes every refresh token of userID ("log out everywhere").
// Access tokens already issued stay valid until they expire.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	return s.ledger.RevokeAllUserTokens(ctx, userID)
}

// CleanupExpired deletes expired and revoked ledger entries.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.ledger.CleanupExpiredTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	tokensCleaned.Add(float64(n))
	return n, nil
}
