package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository/memory"
	"github.com/iliyamo/task-manager/internal/utils"
)

func seedUser(t *testing.T, db *memory.DB, email string, role model.Role) model.User {
	t.Helper()
	u := model.User{Email: email, PasswordHash: "x", FirstName: "First", LastName: "Last", Role: role, IsActive: true}
	require.NoError(t, db.Users().Create(context.Background(), &u))
	return u
}

func newUserService(db *memory.DB) (*UserService, *mockPublisher) {
	events := &mockPublisher{}
	events.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewUserService(db.Users(), db.Tokens(), events, discardLogger()), events
}

func TestUserService_List(t *testing.T) {
	db := memory.New()
	seedUser(t, db, "a@x.com", model.RoleUser)
	seedUser(t, db, "b@x.com", model.RoleAdmin)
	svc, _ := newUserService(db)

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "First Last", users[0].FullName)
}

func TestUserService_Get(t *testing.T) {
	db := memory.New()
	u := seedUser(t, db, "a@x.com", model.RoleUser)
	svc, _ := newUserService(db)

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.Get(context.Background(), "missing")
	requireAppErr(t, err, http.StatusNotFound, MsgUserNotFound)
}

func TestUserService_UpdateRole(t *testing.T) {
	db := memory.New()
	admin := seedUser(t, db, "admin@x.com", model.RoleAdmin)
	u := seedUser(t, db, "a@x.com", model.RoleUser)
	svc, events := newUserService(db)

	got, err := svc.UpdateRole(context.Background(), admin, u.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)
	events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev queue.Event) bool {
		return ev.Type == queue.UserRoleChanged && ev.UserID == u.ID && ev.ActorID == admin.ID && ev.Role == "admin"
	}))

	_, err = svc.UpdateRole(context.Background(), admin, u.ID, "superuser")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, e.Status)

	_, err = svc.UpdateRole(context.Background(), admin, "missing", "user")
	requireAppErr(t, err, http.StatusNotFound, MsgUserNotFound)
}

func TestUserService_DeactivateRevokesTokens(t *testing.T) {
	db := memory.New()
	admin := seedUser(t, db, "admin@x.com", model.RoleAdmin)
	u := seedUser(t, db, "a@x.com", model.RoleUser)
	issuer := NewTokenIssuer(testTokens, db.Tokens())
	pair, err := issuer.Issue(context.Background(), u.ID, u.Role)
	require.NoError(t, err)
	svc, _ := newUserService(db)

	got, err := svc.SetActive(context.Background(), admin, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	ok, err := db.Tokens().IsValidToken(context.Background(), utils.HashToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = svc.SetActive(context.Background(), admin, u.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestUserService_CannotDeactivateSelf(t *testing.T) {
	db := memory.New()
	admin := seedUser(t, db, "admin@x.com", model.RoleAdmin)
	svc, _ := newUserService(db)

	_, err := svc.SetActive(context.Background(), admin, admin.ID, false)
	requireAppErr(t, err, http.StatusBadRequest, "You cannot deactivate your own account")
}
