package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

const taskColumns = "id,title,description,status,created_by,assigned_to,updated_by,created_at,updated_at"

// sortColumns whitelists the ORDER BY columns; values are interpolated.
var sortColumns = map[repository.SortField]string{
	repository.SortCreatedAt: "created_at",
	repository.SortUpdatedAt: "updated_at",
	repository.SortTitle:     "title",
	repository.SortStatus:    "status",
}

// TaskRepo persists tasks in the `tasks` table.
type TaskRepo struct{ DB *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{DB: db} }

func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	t.ID = newID()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		t.ID, t.Title, t.Description, t.Status.String(), t.CreatedBy,
		nullString(t.AssignedTo), nullString(t.UpdatedBy), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, repository.ErrNotFound
	}
	return t, err
}

func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = now()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tasks SET title=?, description=?, status=?, assigned_to=?, updated_by=?, updated_at=? WHERE id=?",
		t.Title, t.Description, t.Status.String(), nullString(t.AssignedTo), nullString(t.UpdatedBy), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List pages through the tasks visible to q.UserID. The cursor is applied
// to the id column only when it names an existing task.
func (r *TaskRepo) List(ctx context.Context, q repository.TaskQuery) (repository.TaskPage, error) {
	q = q.Normalize(q.Limit)

	where := []string{"(created_by=? OR assigned_to=?)"}
	args := []any{q.UserID, q.UserID}
	if q.Status != 0 {
		where = append(where, "status=?")
		args = append(args, q.Status.String())
	}
	if q.Search != "" {
		where = append(where, `(title LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')`)
		like := q.LikeSearch()
		args = append(args, like, like)
	}
	if q.Cursor != "" {
		var one int
		err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id=? LIMIT 1", q.Cursor).Scan(&one)
		switch {
		case err == nil:
			if q.Desc {
				where = append(where, "id < ?")
			} else {
				where = append(where, "id > ?")
			}
			args = append(args, q.Cursor)
		case !errors.Is(err, sql.ErrNoRows):
			return repository.TaskPage{}, err
		}
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	stmt := fmt.Sprintf("SELECT %s FROM tasks WHERE %s ORDER BY %s %s, id %s LIMIT ?",
		taskColumns, strings.Join(where, " AND "), sortColumns[q.SortBy], dir, dir)
	args = append(args, q.Limit+1)

	rows, err := r.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return repository.TaskPage{}, err
	}
	defer rows.Close()
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return repository.TaskPage{}, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return repository.TaskPage{}, err
	}

	page := repository.TaskPage{}
	if len(tasks) > q.Limit {
		page.HasMore = true
		tasks = tasks[:q.Limit]
	}
	page.Tasks = tasks
	if page.HasMore && len(tasks) > 0 {
		page.NextCursor = tasks[len(tasks)-1].ID
	}
	return page, nil
}

func (r *TaskRepo) Stats(ctx context.Context, userID string) (model.TaskStats, error) {
	var s model.TaskStats
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status='pending'), 0),
		        COALESCE(SUM(status='completed'), 0)
		   FROM tasks WHERE created_by=? OR assigned_to=?`,
		userID, userID).Scan(&s.Total, &s.Pending, &s.Completed)
	return s, err
}

func scanTask(s scanner) (model.Task, error) {
	var (
		t                     model.Task
		status                string
		assignedTo, updatedBy sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &t.CreatedBy, &assignedTo, &updatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	parsed, err := model.ParseTaskStatus(status)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = parsed
	t.AssignedTo = assignedTo.String
	t.UpdatedBy = updatedBy.String
	return t, nil
}
