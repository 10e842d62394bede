package model

import (
	"errors"
	"strings"
	"time"
)

// TaskStatus is the closed set of task states.
type TaskStatus uint8

const (
	TaskPending TaskStatus = iota + 1
	TaskCompleted
)

var ErrUnknownTaskStatus = errors.New("unknown task status")

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return TaskPending, nil
	case "completed":
		return TaskCompleted, nil
	}
	return 0, ErrUnknownTaskStatus
}

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskCompleted:
		return "completed"
	}
	return "unknown"
}

func (s TaskStatus) Valid() bool {
	return s == TaskPending || s == TaskCompleted
}

// Toggle flips pending and completed.
func (s TaskStatus) Toggle() TaskStatus {
	if s == TaskCompleted {
		return TaskPending
	}
	return TaskCompleted
}

func (s TaskStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrUnknownTaskStatus
	}
	return []byte(s.String()), nil
}

func (s *TaskStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseTaskStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Task is a unit of work owned by its creator and optionally assigned to
// another user. CreatedBy, AssignedTo and UpdatedBy hold user ids.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) IsCompleted() bool { return t.Status == TaskCompleted }

// IsCreator reports whether userID created the task.
func (t Task) IsCreator(userID string) bool {
	return userID != "" && t.CreatedBy == userID
}

// IsAssignee reports whether the task is assigned to userID.
func (t Task) IsAssignee(userID string) bool {
	return userID != "" && t.AssignedTo != "" && t.AssignedTo == userID
}

// AccessibleBy reports whether userID may read or modify the task.
func (t Task) AccessibleBy(userID string) bool {
	return t.IsCreator(userID) || t.IsAssignee(userID)
}

// TaskStats counts the tasks a user created or is assigned to.
type TaskStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}
