package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// UserHandler serves account lookups and admin account management.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(s *service.UserService) *UserHandler {
	if s == nil {
		panic("nil user service passed to NewUserHandler")
	}
	return &UserHandler{Users: s}
}

type userResp struct {
	User model.User `json:"user"`
}

type usersResp struct {
	Users []model.UserSummary `json:"users"`
	Count int                 `json:"count"`
}

type updateRoleReq struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type setActiveReq struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// actor returns the authenticated caller. Routes using it sit behind
// middleware.Authenticate, so a missing identity is a wiring bug.
func actor(c echo.Context) (model.User, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.User{}, apperr.Unauthenticated(middleware.MsgAuthRequired)
	}
	return id.User, nil
}

// Me returns the caller's own account.
func (h *UserHandler) Me(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Get(ctx, me.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

// List returns every account (admin only).
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, usersResp{Users: users, Count: len(users)})
}

func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

// UpdateRole changes another account's role (admin only).
func (h *UserHandler) UpdateRole(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req updateRoleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.UpdateRole(ctx, me, c.Param("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}

// SetActive enables or disables an account (admin only). Disabling
// revokes every refresh token of the account.
func (h *UserHandler) SetActive(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req setActiveReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.SetActive(ctx, me, c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{User: u})
}
