package repository

import (
	"context"
	"time"

	"github.com/iliyamo/task-manager/internal/model"
)

// UserStore persists user accounts. Emails are stored normalized.
type UserStore interface {
	// Create assigns ID and timestamps on u. Returns ErrEmailExists on a
	// duplicate email.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	// GetByEmail returns the record including its password hash.
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role) (model.User, error)
	SetActive(ctx context.Context, id string, active bool) (model.User, error)
}

// TokenStore is the refresh token ledger. Tokens are addressed by the
// SHA-256 digest of the signed token string.
type TokenStore interface {
	// Store inserts a new ledger entry; ID and timestamps are assigned.
	Store(ctx context.Context, t *model.RefreshToken) error
	// GetByHash returns the entry regardless of its state.
	GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	// IsValidToken is true iff an entry exists, is not revoked and now is
	// not after its expiry. Absence is not an error.
	IsValidToken(ctx context.Context, tokenHash string) (bool, error)
	// RevokeToken marks one entry revoked. Unknown digests are a no-op.
	RevokeToken(ctx context.Context, tokenHash string) error
	// ConsumeToken revokes an unrevoked entry in a single conditional
	// write and reports whether this call was the one that revoked it.
	ConsumeToken(ctx context.Context, tokenHash string) (bool, error)
	// RevokeAllUserTokens marks every entry owned by userID revoked.
	RevokeAllUserTokens(ctx context.Context, userID string) error
	// CleanupExpiredTokens deletes entries with expiresAt < now or
	// isRevoked set and reports how many were removed.
	CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// SortField names the columns a task listing may be ordered by.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortStatus    SortField = "status"
)

// TaskQuery describes one page of the tasks visible to UserID, i.e. the
// tasks it created or is assigned to.
type TaskQuery struct {
	UserID string
	Status model.TaskStatus // zero means any
	Search string           // literal, case-insensitive, title or description
	// Cursor is the id of the last task of the previous page. The next
	// page continues by id, so it only lines up with the sort order for
	// createdAt; with title, status or updatedAt pages may skip or repeat
	// tasks.
	Cursor string
	Limit  int
	SortBy SortField
	Desc   bool
}

// TaskPage is one page of results. NextCursor is empty when HasMore is false.
type TaskPage struct {
	Tasks      []model.Task
	NextCursor string
	HasMore    bool
}

// TaskStore persists tasks.
type TaskStore interface {
	Create(ctx context.Context, t *model.Task) error
	GetByID(ctx context.Context, id string) (model.Task, error)
	// Update overwrites the mutable fields of t and refreshes UpdatedAt.
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q TaskQuery) (TaskPage, error)
	Stats(ctx context.Context, userID string) (model.TaskStats, error)
}

// Store bundles the three stores of one backend.
type Store struct {
	Users  UserStore
	Tokens TokenStore
	Tasks  TaskStore
	// Close releases the backend connection. Never nil.
	Close func(ctx context.Context) error
}
