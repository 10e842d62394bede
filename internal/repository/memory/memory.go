// Package memory is an in-process implementation of the repository
// contracts. It backs STORE_DRIVER=memory for local runs and is the store
// used by service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

// DB holds all collections behind one lock.
type DB struct {
	mu     sync.RWMutex
	users  map[string]model.User
	emails map[string]string // normalized email -> user id
	tokens map[string]model.RefreshToken
	tasks  map[string]model.Task
	now    func() time.Time
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:  map[string]model.User{},
		emails: map[string]string{},
		tokens: map[string]model.RefreshToken{},
		tasks:  map[string]model.Task{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewStore wraps a fresh DB in a repository.Store.
func NewStore() repository.Store {
	db := New()
	return repository.Store{
		Users:  db.Users(),
		Tokens: db.Tokens(),
		Tasks:  db.Tasks(),
		Close:  func(context.Context) error { return nil },
	}
}

// SetClock overrides the time source used for timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// newID returns a UUIDv7; its string form sorts by creation time.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (db *DB) Users() *UserRepo   { return &UserRepo{db: db} }
func (db *DB) Tokens() *TokenRepo { return &TokenRepo{db: db} }
func (db *DB) Tasks() *TaskRepo   { return &TaskRepo{db: db} }

// ----- users -----

type UserRepo struct{ db *DB }

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email := model.NormalizeEmail(u.Email)
	if _, ok := r.db.emails[email]; ok {
		return repository.ErrEmailExists
	}
	now := r.db.now()
	u.ID = newID()
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	r.db.users[u.ID] = *u
	r.db.emails[email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	id, ok := r.db.emails[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return r.db.users[id], nil
}

func (r *UserRepo) List(_ context.Context) ([]model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *UserRepo) UpdateRole(_ context.Context, id string, role model.Role) (model.User, error) {
	return r.mutate(id, func(u *model.User) { u.Role = role })
}

func (r *UserRepo) SetActive(_ context.Context, id string, active bool) (model.User, error) {
	return r.mutate(id, func(u *model.User) { u.IsActive = active })
}

func (r *UserRepo) mutate(id string, fn func(*model.User)) (model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = r.db.now()
	r.db.users[id] = u
	return u, nil
}

// ----- refresh token ledger -----

type TokenRepo struct{ db *DB }

func (r *TokenRepo) Store(_ context.Context, t *model.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tokens[t.TokenHash]; ok {
		return repository.ErrDuplicateToken
	}
	now := r.db.now()
	t.ID = newID()
	t.CreatedAt, t.UpdatedAt = now, now
	r.db.tokens[t.TokenHash] = *t
	return nil
}

func (r *TokenRepo) GetByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tokens[tokenHash]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *TokenRepo) IsValidToken(_ context.Context, tokenHash string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tokens[tokenHash]
	if !ok {
		return false, nil
	}
	return t.Usable(r.db.now()), nil
}

func (r *TokenRepo) RevokeToken(_ context.Context, tokenHash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tokens[tokenHash]
	if !ok || t.IsRevoked {
		return nil
	}
	t.IsRevoked = true
	t.UpdatedAt = r.db.now()
	r.db.tokens[tokenHash] = t
	return nil
}

func (r *TokenRepo) ConsumeToken(_ context.Context, tokenHash string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tokens[tokenHash]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	t.UpdatedAt = r.db.now()
	r.db.tokens[tokenHash] = t
	return true, nil
}

func (r *TokenRepo) RevokeAllUserTokens(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for h, t := range r.db.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			t.UpdatedAt = now
			r.db.tokens[h] = t
		}
	}
	return nil
}

func (r *TokenRepo) CleanupExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for h, t := range r.db.tokens {
		if t.IsRevoked || t.ExpiresAt.Before(now) {
			delete(r.db.tokens, h)
			n++
		}
	}
	return n, nil
}

// ----- tasks -----

type TaskRepo struct{ db *DB }

func (r *TaskRepo) Create(_ context.Context, t *model.Task) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	t.ID = newID()
	t.CreatedAt, t.UpdatedAt = now, now
	r.db.tasks[t.ID] = *t
	return nil
}

func (r *TaskRepo) GetByID(_ context.Context, id string) (model.Task, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tasks[id]
	if !ok {
		return model.Task{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *TaskRepo) Update(_ context.Context, t *model.Task) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	t.CreatedBy = cur.CreatedBy
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = r.db.now()
	r.db.tasks[t.ID] = *t
	return nil
}

func (r *TaskRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.tasks, id)
	return nil
}

func (r *TaskRepo) List(_ context.Context, q repository.TaskQuery) (repository.TaskPage, error) {
	q = q.Normalize(q.Limit)
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	// A cursor naming a task that no longer exists is ignored.
	_, cursorKnown := r.db.tasks[q.Cursor]

	var matched []model.Task
	for _, t := range r.db.tasks {
		if !t.AccessibleBy(q.UserID) {
			continue
		}
		if q.Status != 0 && t.Status != q.Status {
			continue
		}
		if !q.MatchesSearch(t.Title, t.Description) {
			continue
		}
		if cursorKnown {
			if q.Desc && t.ID >= q.Cursor {
				continue
			}
			if !q.Desc && t.ID <= q.Cursor {
				continue
			}
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		c := compareTasks(matched[i], matched[j], q.SortBy)
		if c == 0 {
			c = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	page := repository.TaskPage{}
	if len(matched) > q.Limit {
		page.HasMore = true
		matched = matched[:q.Limit]
	}
	page.Tasks = matched
	if page.HasMore && len(matched) > 0 {
		page.NextCursor = matched[len(matched)-1].ID
	}
	return page, nil
}

func compareTasks(a, b model.Task, field repository.SortField) int {
	switch field {
	case repository.SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case repository.SortTitle:
		return strings.Compare(a.Title, b.Title)
	case repository.SortStatus:
		return strings.Compare(a.Status.String(), b.Status.String())
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (r *TaskRepo) Stats(_ context.Context, userID string) (model.TaskStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var s model.TaskStats
	for _, t := range r.db.tasks {
		if !t.AccessibleBy(userID) {
			continue
		}
		s.Total++
		switch t.Status {
		case model.TaskPending:
			s.Pending++
		case model.TaskCompleted:
			s.Completed++
		}
	}
	return s, nil
}
