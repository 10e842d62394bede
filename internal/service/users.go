package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
)

// UserService exposes profiles and the admin operations on accounts.
// Admin-only methods rely on the router having applied the admin gate.
type UserService struct {
	users  repository.UserStore
	ledger repository.TokenStore
	events EventPublisher
	log    *slog.Logger
}

func NewUserService(users repository.UserStore, ledger repository.TokenStore, events EventPublisher, log *slog.Logger) *UserService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &UserService{users: users, ledger: ledger, events: events, log: log}
}

// List returns every account as a summary.
func (s *UserService) List(ctx context.Context) ([]model.UserSummary, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// Get loads one account.
func (s *UserService) Get(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, userError(err, id)
	}
	return u, nil
}

// UpdateRole sets the role of account id.
func (s *UserService) UpdateRole(ctx context.Context, actor model.User, id, role string) (model.User, error) {
	r, err := model.ParseRole(role)
	if err != nil {
		msg := "Please provide a valid role, must be one of user, admin"
		return model.User{}, apperr.Validation(msg, apperr.FieldError{Field: "role", Message: msg})
	}
	u, err := s.users.UpdateRole(ctx, id, r)
	if err != nil {
		return model.User{}, userError(err, id)
	}
	emit(ctx, s.events, s.log, queue.Event{Type: queue.UserRoleChanged, UserID: u.ID, ActorID: actor.ID, Role: r.String()})
	return u, nil
}

// SetActive enables or disables account id. Deactivation also revokes all
// of its refresh tokens so that no new access token can be minted.
func (s *UserService) SetActive(ctx context.Context, actor model.User, id string, active bool) (model.User, error) {
	if !active && actor.ID == id {
		return model.User{}, apperr.Validation("You cannot deactivate your own account")
	}
	u, err := s.users.SetActive(ctx, id, active)
	if err != nil {
		return model.User{}, userError(err, id)
	}
	if !active {
		if err := s.ledger.RevokeAllUserTokens(ctx, u.ID); err != nil {
			return model.User{}, fmt.Errorf("revoke tokens: %w", err)
		}
		emit(ctx, s.events, s.log, queue.Event{Type: queue.UserDeactivated, UserID: u.ID, ActorID: actor.ID})
	}
	return u, nil
}

func userError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(MsgUserNotFound)
	case errors.Is(err, repository.ErrInvalidID):
		return invalidID(id)
	}
	return err
}

// invalidID reports a malformed identifier in a path parameter.
func invalidID(id string) error {
	return apperr.Validation(fmt.Sprintf("Invalid id: %s", id))
}
