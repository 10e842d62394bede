package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// TaskHandler serves task CRUD, listing and stats.
type TaskHandler struct {
	Tasks *service.TaskService
}

func NewTaskHandler(s *service.TaskService) *TaskHandler {
	if s == nil {
		panic("nil task service passed to NewTaskHandler")
	}
	return &TaskHandler{Tasks: s}
}

type createTaskReq struct {
	Title       string `json:"title" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
	Status      string `json:"status" validate:"omitempty,oneof=pending completed"`
	AssignedTo  string `json:"assignedTo"`
}

type updateTaskReq struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=100"`
	Description *string `json:"description" validate:"omitempty,min=10,max=1000"`
	Status      *string `json:"status" validate:"omitempty,oneof=pending completed"`
	AssignedTo  *string `json:"assignedTo"`
}

type taskResp struct {
	Task service.TaskView `json:"task"`
}

type statsResp struct {
	Stats model.TaskStats `json:"stats"`
}

func (h *TaskHandler) Stats(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	stats, err := h.Tasks.Stats(ctx, me)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statsResp{Stats: stats})
}

// List returns one page of the caller's tasks. Query parameters are
// passed through raw; the service validates them.
func (h *TaskHandler) List(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	page, err := h.Tasks.List(ctx, me, service.ListTasksInput{
		Cursor:    c.QueryParam("cursor"),
		Limit:     c.QueryParam("limit"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
		Status:    c.QueryParam("status"),
		Search:    c.QueryParam("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) Create(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req createTaskReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.Tasks.Create(ctx, me, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, taskResp{Task: v})
}

func (h *TaskHandler) Get(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.Tasks.Get(ctx, me, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskResp{Task: v})
}

func (h *TaskHandler) Update(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	var req updateTaskReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.Tasks.Update(ctx, me, c.Param("id"), service.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskResp{Task: v})
}

// Toggle flips a task between pending and completed.
func (h *TaskHandler) Toggle(c echo.Context) error {
	me, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.Tasks.Toggle(ctx, me, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskResp{Task: v})
}

// Delete removes a task (admin only).
func (h *TaskHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Tasks.Delete(ctx, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: service.MsgTaskDeleted})
}
