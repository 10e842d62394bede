package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

const (
	MsgTaskNotFound     = "Task not found"
	MsgTaskViewDenied   = "Access denied. You can only view your own tasks or tasks assigned to you"
	MsgTaskUpdateDenied = "Access denied. You can only update your own tasks or tasks assigned to you"
	MsgTaskDeleted      = "Task deleted successfully"
)

// TaskView is a task with its creator, assignee and last editor resolved
// to user summaries.
type TaskView struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      model.TaskStatus   `json:"status"`
	CreatedBy   *model.UserSummary `json:"createdBy"`
	AssignedTo  *model.UserSummary `json:"assignedTo,omitempty"`
	UpdatedBy   *model.UserSummary `json:"updatedBy,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// CreateTaskInput is a validated create request.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      string // optional, defaults to pending
	AssignedTo  string // optional user id
}

// UpdateTaskInput is a partial update; nil fields are left unchanged and
// an empty AssignedTo clears the assignment.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	AssignedTo  *string
}

// ListTasksInput holds the raw query string values of a listing.
type ListTasksInput struct {
	Cursor    string
	Limit     string
	SortBy    string
	SortOrder string
	Status    string
	Search    string
}

// TaskList is one page of tasks. NextCursor is null on the last page.
type TaskList struct {
	Tasks      []TaskView `json:"tasks"`
	NextCursor *string    `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
	Limit      int        `json:"limit"`
}

// TaskService implements task CRUD with creator/assignee access control.
type TaskService struct {
	tasks    repository.TaskStore
	users    repository.UserStore
	pageSize int
}

func NewTaskService(tasks repository.TaskStore, users repository.UserStore, pageSize int) *TaskService {
	return &TaskService{tasks: tasks, users: users, pageSize: pageSize}
}

func (s *TaskService) Create(ctx context.Context, actor model.User, in CreateTaskInput) (TaskView, error) {
	status := model.TaskPending
	if in.Status != "" {
		var err error
		if status, err = parseStatus(in.Status); err != nil {
			return TaskView{}, err
		}
	}
	if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
		return TaskView{}, err
	}
	t := model.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      status,
		CreatedBy:   actor.ID,
		AssignedTo:  in.AssignedTo,
	}
	if err := s.tasks.Create(ctx, &t); err != nil {
		return TaskView{}, err
	}
	return s.view(ctx, t, newUserCache())
}

func (s *TaskService) Get(ctx context.Context, actor model.User, id string) (TaskView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	if !t.AccessibleBy(actor.ID) {
		return TaskView{}, apperr.Forbidden(MsgTaskViewDenied)
	}
	return s.view(ctx, t, newUserCache())
}

func (s *TaskService) Update(ctx context.Context, actor model.User, id string, in UpdateTaskInput) (TaskView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	if !t.AccessibleBy(actor.ID) {
		return TaskView{}, apperr.Forbidden(MsgTaskUpdateDenied)
	}

	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		if t.Status, err = parseStatus(*in.Status); err != nil {
			return TaskView{}, err
		}
	}
	if in.AssignedTo != nil {
		if err := s.checkAssignee(ctx, *in.AssignedTo); err != nil {
			return TaskView{}, err
		}
		t.AssignedTo = *in.AssignedTo
	}
	t.UpdatedBy = actor.ID
	if err := s.tasks.Update(ctx, &t); err != nil {
		return TaskView{}, taskError(err, id)
	}
	return s.view(ctx, t, newUserCache())
}

// Toggle flips the status between pending and completed.
func (s *TaskService) Toggle(ctx context.Context, actor model.User, id string) (TaskView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	if !t.AccessibleBy(actor.ID) {
		return TaskView{}, apperr.Forbidden(MsgTaskUpdateDenied)
	}
	t.Status = t.Status.Toggle()
	t.UpdatedBy = actor.ID
	if err := s.tasks.Update(ctx, &t); err != nil {
		return TaskView{}, taskError(err, id)
	}
	return s.view(ctx, t, newUserCache())
}

// Delete removes a task. Only admins reach it, so no ownership check.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return taskError(err, id)
	}
	return nil
}

// List returns one page of the tasks actor created or is assigned to.
func (s *TaskService) List(ctx context.Context, actor model.User, in ListTasksInput) (TaskList, error) {
	q := repository.TaskQuery{
		UserID: actor.ID,
		Cursor: strings.TrimSpace(in.Cursor),
		Search: in.Search,
		Desc:   !strings.EqualFold(strings.TrimSpace(in.SortOrder), "asc"),
	}
	if in.Limit != "" {
		n, err := strconv.Atoi(strings.TrimSpace(in.Limit))
		if err != nil || n < 1 {
			return TaskList{}, apperr.Validation("Limit must be a positive integer")
		}
		q.Limit = n
	}
	if in.SortBy != "" {
		switch f := repository.SortField(strings.TrimSpace(in.SortBy)); f {
		case repository.SortCreatedAt, repository.SortUpdatedAt, repository.SortTitle, repository.SortStatus:
			q.SortBy = f
		default:
			return TaskList{}, apperr.Validation("sortBy must be one of createdAt, updatedAt, title, status")
		}
	}
	if in.Status != "" {
		st, err := parseStatus(in.Status)
		if err != nil {
			return TaskList{}, err
		}
		q.Status = st
	}
	q = q.Normalize(s.pageSize)

	page, err := s.tasks.List(ctx, q)
	if err != nil {
		return TaskList{}, err
	}
	out := TaskList{Tasks: make([]TaskView, 0, len(page.Tasks)), HasMore: page.HasMore, Limit: q.Limit}
	cache := newUserCache()
	for _, t := range page.Tasks {
		v, err := s.view(ctx, t, cache)
		if err != nil {
			return TaskList{}, err
		}
		out.Tasks = append(out.Tasks, v)
	}
	if page.NextCursor != "" {
		next := page.NextCursor
		out.NextCursor = &next
	}
	return out, nil
}

// Stats counts the tasks visible to actor by status.
func (s *TaskService) Stats(ctx context.Context, actor model.User) (model.TaskStats, error) {
	return s.tasks.Stats(ctx, actor.ID)
}

func (s *TaskService) load(ctx context.Context, id string) (model.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return model.Task{}, taskError(err, id)
	}
	return t, nil
}

func (s *TaskService) checkAssignee(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.users.GetByID(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInvalidID):
		return apperr.Validation(fmt.Sprintf("Invalid assignedTo: %s", id))
	case errors.Is(err, repository.ErrNotFound):
		msg := "Assigned user not found"
		return apperr.Validation(msg, apperr.FieldError{Field: "assignedTo", Message: msg})
	}
	return err
}

// userCache memoizes summaries while one response is being assembled.
type userCache map[string]*model.UserSummary

func newUserCache() userCache { return userCache{} }

func (s *TaskService) summary(ctx context.Context, id string, cache userCache) (*model.UserSummary, error) {
	if id == "" {
		return nil, nil
	}
	if sum, ok := cache[id]; ok {
		return sum, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sum := u.Summary()
	sum.Role = 0
	cache[id] = &sum
	return &sum, nil
}

func (s *TaskService) view(ctx context.Context, t model.Task, cache userCache) (TaskView, error) {
	v := TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	var err error
	if v.CreatedBy, err = s.summary(ctx, t.CreatedBy, cache); err != nil {
		return TaskView{}, err
	}
	if v.AssignedTo, err = s.summary(ctx, t.AssignedTo, cache); err != nil {
		return TaskView{}, err
	}
	if v.UpdatedBy, err = s.summary(ctx, t.UpdatedBy, cache); err != nil {
		return TaskView{}, err
	}
	return v, nil
}

func parseStatus(s string) (model.TaskStatus, error) {
	st, err := model.ParseTaskStatus(s)
	if err != nil {
		msg := "Status must be one of pending, completed"
		return 0, apperr.Validation(msg, apperr.FieldError{Field: "status", Message: msg})
	}
	return st, nil
}

func taskError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(MsgTaskNotFound)
	case errors.Is(err, repository.ErrInvalidID):
		return invalidID(id)
	}
	return err
}
