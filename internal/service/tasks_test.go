package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository/memory"
)

type taskFixture struct {
	db       *memory.DB
	svc      *TaskService
	owner    model.User
	assignee model.User
	outsider model.User
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	db := memory.New()
	return &taskFixture{
		db:       db,
		svc:      NewTaskService(db.Tasks(), db.Users(), 20),
		owner:    seedUser(t, db, "owner@x.com", model.RoleUser),
		assignee: seedUser(t, db, "assignee@x.com", model.RoleUser),
		outsider: seedUser(t, db, "outsider@x.com", model.RoleUser),
	}
}

func (f *taskFixture) create(t *testing.T, title string, assignTo string) TaskView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), f.owner, CreateTaskInput{
		Title:       title,
		Description: "a description long enough",
		AssignedTo:  assignTo,
	})
	require.NoError(t, err)
	return v
}

func ptr(s string) *string { return &s }

func TestTaskService_CreatePopulatesUsers(t *testing.T) {
	f := newTaskFixture(t)
	v := f.create(t, "Write docs", f.assignee.ID)

	assert.Equal(t, model.TaskPending, v.Status)
	require.NotNil(t, v.CreatedBy)
	assert.Equal(t, f.owner.Email, v.CreatedBy.Email)
	assert.Zero(t, v.CreatedBy.Role)
	require.NotNil(t, v.AssignedTo)
	assert.Equal(t, f.assignee.ID, v.AssignedTo.ID)
	assert.Nil(t, v.UpdatedBy)
}

func TestTaskService_CreateValidation(t *testing.T) {
	f := newTaskFixture(t)

	_, err := f.svc.Create(context.Background(), f.owner, CreateTaskInput{Title: "abc", Description: "0123456789", Status: "archived"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, e.Status)

	_, err = f.svc.Create(context.Background(), f.owner, CreateTaskInput{Title: "abc", Description: "0123456789", AssignedTo: "ghost"})
	requireAppErr(t, err, http.StatusBadRequest, "Assigned user not found")

	v, err := f.svc.Create(context.Background(), f.owner, CreateTaskInput{Title: "abc", Description: "0123456789", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, v.Status)
}

func TestTaskService_GetAccess(t *testing.T) {
	f := newTaskFixture(t)
	v := f.create(t, "Shared", f.assignee.ID)

	_, err := f.svc.Get(context.Background(), f.owner, v.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), f.assignee, v.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), f.outsider, v.ID)
	requireAppErr(t, err, http.StatusForbidden, MsgTaskViewDenied)

	_, err = f.svc.Get(context.Background(), f.owner, "missing")
	requireAppErr(t, err, http.StatusNotFound, MsgTaskNotFound)
}

func TestTaskService_Update(t *testing.T) {
	f := newTaskFixture(t)
	v := f.create(t, "Original", "")

	got, err := f.svc.Update(context.Background(), f.owner, v.ID, UpdateTaskInput{
		Title:      ptr("Renamed"),
		Status:     ptr("completed"),
		AssignedTo: ptr(f.assignee.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "a description long enough", got.Description)
	assert.Equal(t, model.TaskCompleted, got.Status)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, f.owner.ID, got.UpdatedBy.ID)

	// The assignee may now edit and clear its own assignment.
	got, err = f.svc.Update(context.Background(), f.assignee, v.ID, UpdateTaskInput{AssignedTo: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)
	assert.Equal(t, f.assignee.ID, got.UpdatedBy.ID)

	_, err = f.svc.Update(context.Background(), f.assignee, v.ID, UpdateTaskInput{Title: ptr("Again")})
	requireAppErr(t, err, http.StatusForbidden, MsgTaskUpdateDenied)
}

func TestTaskService_Toggle(t *testing.T) {
	f := newTaskFixture(t)
	v := f.create(t, "Toggle me", "")

	got, err := f.svc.Toggle(context.Background(), f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)

	got, err = f.svc.Toggle(context.Background(), f.owner, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.Status)

	_, err = f.svc.Toggle(context.Background(), f.outsider, v.ID)
	requireAppErr(t, err, http.StatusForbidden, MsgTaskUpdateDenied)
}

func TestTaskService_Delete(t *testing.T) {
	f := newTaskFixture(t)
	v := f.create(t, "Delete me", "")

	require.NoError(t, f.svc.Delete(context.Background(), v.ID))
	err := f.svc.Delete(context.Background(), v.ID)
	requireAppErr(t, err, http.StatusNotFound, MsgTaskNotFound)
}

func TestTaskService_ListPaginates(t *testing.T) {
	f := newTaskFixture(t)
	for i := 0; i < 5; i++ {
		f.create(t, fmt.Sprintf("Task %d", i), "")
	}
	_, err := f.svc.Create(context.Background(), f.outsider, CreateTaskInput{Title: "Not mine", Description: "0123456789"})
	require.NoError(t, err)

	seen := map[string]bool{}
	in := ListTasksInput{Limit: "2", SortBy: "createdAt", SortOrder: "desc"}
	pages := 0
	for {
		page, err := f.svc.List(context.Background(), f.owner, in)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Limit)
		for _, v := range page.Tasks {
			assert.False(t, seen[v.ID], "task %s returned twice", v.ID)
			seen[v.ID] = true
		}
		pages++
		if !page.HasMore {
			assert.Nil(t, page.NextCursor)
			break
		}
		require.NotNil(t, page.NextCursor)
		in.Cursor = *page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

func TestTaskService_ListFilters(t *testing.T) {
	f := newTaskFixture(t)
	f.create(t, "Buy milk", "")
	f.create(t, "Fix (regex) bug", f.assignee.ID)
	done := f.create(t, "Ship release", "")
	_, err := f.svc.Toggle(context.Background(), f.owner, done.ID)
	require.NoError(t, err)

	page, err := f.svc.List(context.Background(), f.owner, ListTasksInput{Status: "completed"})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, done.ID, page.Tasks[0].ID)

	page, err = f.svc.List(context.Background(), f.owner, ListTasksInput{Search: "(REGEX)"})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "Fix (regex) bug", page.Tasks[0].Title)

	page, err = f.svc.List(context.Background(), f.assignee, ListTasksInput{})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 20, page.Limit)
}

func TestTaskService_ListRejectsBadQuery(t *testing.T) {
	f := newTaskFixture(t)
	for _, in := range []ListTasksInput{
		{Limit: "zero"},
		{Limit: "-1"},
		{SortBy: "password"},
		{Status: "archived"},
	} {
		_, err := f.svc.List(context.Background(), f.owner, in)
		e, ok := apperr.As(err)
		require.True(t, ok, "%+v", in)
		assert.Equal(t, http.StatusBadRequest, e.Status)
	}
}

func TestTaskService_ListClampsLimit(t *testing.T) {
	f := newTaskFixture(t)
	page, err := f.svc.List(context.Background(), f.owner, ListTasksInput{Limit: "1000"})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.NotNil(t, page.Tasks)
}

func TestTaskService_Stats(t *testing.T) {
	f := newTaskFixture(t)
	f.create(t, "One", "")
	two := f.create(t, "Two", f.assignee.ID)
	_, err := f.svc.Toggle(context.Background(), f.owner, two.ID)
	require.NoError(t, err)

	stats, err := f.svc.Stats(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStats{Total: 2, Pending: 1, Completed: 1}, stats)

	stats, err = f.svc.Stats(context.Background(), f.assignee)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStats{Total: 1, Pending: 0, Completed: 1}, stats)

	stats, err = f.svc.Stats(context.Background(), f.outsider)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}
