package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository/memory"
	"github.com/iliyamo/task-manager/internal/service"
	"github.com/iliyamo/task-manager/internal/utils"
)

const testAccessSecret = "test-access-secret"

type authFixture struct {
	db     *memory.DB
	issuer *service.TokenIssuer
	e      *echo.Echo
}

func newAuthFixture() *authFixture {
	db := memory.New()
	return &authFixture{
		db: db,
		issuer: service.NewTokenIssuer(service.TokenConfig{
			AccessSecret:  testAccessSecret,
			AccessTTL:     time.Minute,
			RefreshSecret: "test-refresh-secret",
			RefreshTTL:    time.Hour,
		}, db.Tokens()),
		e: echo.New(),
	}
}

func (f *authFixture) user(t *testing.T, role model.Role, active bool) model.User {
	t.Helper()
	u := model.User{Email: role.String() + "@x.com", PasswordHash: "x", FirstName: "A", LastName: "B", Role: role, IsActive: true}
	require.NoError(t, f.db.Users().Create(context.Background(), &u))
	if !active {
		var err error
		u, err = f.db.Users().SetActive(context.Background(), u.ID, false)
		require.NoError(t, err)
	}
	return u
}

func (f *authFixture) token(t *testing.T, u model.User) string {
	t.Helper()
	pair, err := f.issuer.Issue(context.Background(), u.ID, u.Role)
	require.NoError(t, err)
	return pair.AccessToken
}

// serve runs the chain against a request carrying the given Authorization
// header and returns the chain's error and the identity the handler saw.
func (f *authFixture) serve(header string, mws ...echo.MiddlewareFunc) (Identity, bool, error) {
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := f.e.NewContext(req, httptest.NewRecorder())

	var seen Identity
	var reached bool
	h := func(c echo.Context) error {
		seen, reached = IdentityFrom(c)
		return c.NoContent(http.StatusOK)
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	err := h(c)
	return seen, reached, err
}

func requireStatus(t *testing.T, err error, status int, msg string) {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	assert.Equal(t, status, e.Status)
	assert.Equal(t, msg, e.Message)
}

func TestAuthenticate_AttachesIdentity(t *testing.T) {
	f := newAuthFixture()
	u := f.user(t, model.RoleUser, true)

	id, ok, err := f.serve("Bearer "+f.token(t, u), Authenticate(f.issuer, f.db.Users()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, id.User.ID)
	assert.Equal(t, model.RoleUser, id.Role)
}

func TestAuthenticate_RoleComesFromStore(t *testing.T) {
	f := newAuthFixture()
	u := f.user(t, model.RoleUser, true)
	tok := f.token(t, u)
	_, err := f.db.Users().UpdateRole(context.Background(), u.ID, model.RoleAdmin)
	require.NoError(t, err)

	_, _, err = f.serve("Bearer "+tok, Authenticate(f.issuer, f.db.Users()), RequireAdmin())
	require.NoError(t, err)
}

func TestAuthenticate_Rejections(t *testing.T) {
	f := newAuthFixture()
	inactive := f.user(t, model.RoleUser, false)
	ghost := model.User{ID: "0190c5f0-0000-7000-8000-000000000000", Role: model.RoleUser}

	now := time.Now().Truncate(time.Second)
	expired, err := utils.NewAccessToken(testAccessSecret, inactive.ID, model.RoleUser, now.Add(-2*time.Minute), now.Add(-time.Minute))
	require.NoError(t, err)
	foreign, err := utils.NewAccessToken("other-secret", inactive.ID, model.RoleUser, now, now.Add(time.Minute))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"missing header", "", http.StatusUnauthorized, MsgNoToken},
		{"basic scheme", "Basic abc", http.StatusUnauthorized, MsgNoToken},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, MsgNoToken},
		{"expired", "Bearer " + expired.Token, http.StatusUnauthorized, MsgTokenExpired},
		{"foreign signature", "Bearer " + foreign.Token, http.StatusUnauthorized, MsgTokenInvalid},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, MsgTokenInvalid},
		{"user gone", "Bearer " + f.token(t, ghost), http.StatusNotFound, MsgUserNotFound},
		{"deactivated", "Bearer " + f.token(t, inactive), http.StatusForbidden, MsgUserInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, reached, err := f.serve(tc.header, Authenticate(f.issuer, f.db.Users()))
			assert.False(t, reached)
			requireStatus(t, err, tc.status, tc.msg)
		})
	}
}

func TestAuthenticate_IgnoresLedger(t *testing.T) {
	f := newAuthFixture()
	u := f.user(t, model.RoleUser, true)
	tok := f.token(t, u)
	require.NoError(t, f.db.Tokens().RevokeAllUserTokens(context.Background(), u.ID))

	_, ok, err := f.serve("Bearer "+tok, Authenticate(f.issuer, f.db.Users()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequireAdmin(t *testing.T) {
	f := newAuthFixture()
	admin := f.user(t, model.RoleAdmin, true)
	plain := f.user(t, model.RoleUser, true)
	gate := []echo.MiddlewareFunc{Authenticate(f.issuer, f.db.Users()), RequireAdmin()}

	_, ok, err := f.serve("Bearer "+f.token(t, admin), gate...)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = f.serve("Bearer "+f.token(t, plain), gate...)
	requireStatus(t, err, http.StatusForbidden, MsgAdminRequired)

	_, _, err = f.serve("", RequireAdmin())
	requireStatus(t, err, http.StatusUnauthorized, MsgAuthRequired)
}
