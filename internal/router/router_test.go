package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/repository/memory"
	"github.com/iliyamo/task-manager/internal/service"
)

type testAPI struct {
	t *testing.T
	e *echo.Echo
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithRedis(t, nil)
}

// newTestAPIWithRedis enables the response cache when rdb is not nil.
func newTestAPIWithRedis(t *testing.T, rdb *redis.Client) *testAPI {
	t.Helper()
	db := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:  "integration-access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "integration-refresh-secret",
		RefreshTTL:    7 * 24 * time.Hour,
	}, db.Tokens())

	e := New(Options{
		Log:      log,
		Verifier: issuer,
		Users:    db.Users(),
		Sessions: service.NewSessionService(db.Users(), db.Tokens(), issuer, 4, nil, log),
		Accounts: service.NewUserService(db.Users(), db.Tokens(), nil, log),
		Tasks:    service.NewTaskService(db.Tasks(), db.Users(), 20),
		Redis:    rdb,
		Cache: config.CacheConfig{
			Enabled:      true,
			Methods:      []string{"GET"},
			TTL:          time.Minute,
			KeyStrategy:  "route_query",
			Prefix:       "cache",
			MaxBodyBytes: 1 << 20,
		},
	})
	return &testAPI{t: t, e: e}
}

// do sends a JSON request and decodes the JSON response into a map.
func (a *testAPI) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

type session struct {
	id      string
	access  string
	refresh string
}

func (a *testAPI) register(email, role string) session {
	a.t.Helper()
	body := map[string]any{"email": email, "password": "Passw0rd!", "firstName": "Test", "lastName": "User"}
	if role != "" {
		body["role"] = role
	}
	code, out := a.do(http.MethodPost, "/v1/auth/register", "", body)
	require.Equal(a.t, http.StatusCreated, code, out)
	user := out["user"].(map[string]any)
	return session{id: user["id"].(string), access: out["accessToken"].(string), refresh: out["refreshToken"].(string)}
}

func TestRegisterRefreshRotation(t *testing.T) {
	api := newTestAPI(t)
	s := api.register("Rotate@Example.com", "")

	code, out := api.do(http.MethodGet, "/v1/users/me", s.access, nil)
	require.Equal(t, http.StatusOK, code)
	user := out["user"].(map[string]any)
	assert.Equal(t, "rotate@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")

	code, out = api.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": s.refresh})
	require.Equal(t, http.StatusOK, code, out)
	assert.NotEmpty(t, out["accessToken"])
	assert.NotEqual(t, s.refresh, out["refreshToken"])

	code, out = api.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": s.refresh})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "Invalid or revoked refresh token", out["message"])
}

func TestSignInAndLogout(t *testing.T) {
	api := newTestAPI(t)
	api.register("login@example.com", "")

	code, out := api.do(http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "login@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", out["message"])

	code, out = api.do(http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "login@example.com", "password": "Passw0rd!"})
	require.Equal(t, http.StatusOK, code)
	access, refresh := out["accessToken"].(string), out["refreshToken"].(string)

	code, out = api.do(http.MethodPost, "/v1/auth/logout", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Logged out successfully", out["message"])

	// Logging out again, or with a token never issued, still succeeds.
	code, _ = api.do(http.MethodPost, "/v1/auth/logout", "", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusOK, code)

	code, out = api.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid or revoked refresh token", out["message"])

	// The access token is not tied to the ledger and keeps working.
	code, _ = api.do(http.MethodGet, "/v1/users/me", access, nil)
	assert.Equal(t, http.StatusOK, code)

	code, out = api.do(http.MethodPost, "/v1/auth/logout", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Refresh token is required", out["message"])
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)
	api.register("dup@example.com", "")

	code, out := api.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "DUP@example.com", "password": "Passw0rd!", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "This email is already registered", out["message"])

	code, out = api.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "weak@example.com", "password": "password", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password must contain at least one uppercase letter", out["message"])
	assert.NotEmpty(t, out["errors"])

	code, out = api.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "long@example.com", "password": "Test@123" + strings.Repeat("a", 70), "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password must be at most 72 bytes", out["message"])
}

func TestRoleUpdateRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("admin@example.com", "admin")
	plain := api.register("plain@example.com", "")

	code, out := api.do(http.MethodPatch, "/v1/users/"+plain.id+"/role", plain.access, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, out["message"], "admin")

	code, out = api.do(http.MethodGet, "/v1/users", plain.access, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, out = api.do(http.MethodPatch, "/v1/users/"+plain.id+"/role", admin.access, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "admin", out["user"].(map[string]any)["role"])

	code, out = api.do(http.MethodGet, "/v1/users", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["count"])
}

func TestDeactivationEndsSessions(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("boss@example.com", "admin")
	plain := api.register("worker@example.com", "")

	code, out := api.do(http.MethodPatch, "/v1/users/"+admin.id+"/active", admin.access, map[string]bool{"isActive": false})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You cannot deactivate your own account", out["message"])

	code, _ = api.do(http.MethodPatch, "/v1/users/"+plain.id+"/active", admin.access, map[string]bool{"isActive": false})
	require.Equal(t, http.StatusOK, code)

	code, out = api.do(http.MethodGet, "/v1/users/me", plain.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account is deactivated", out["message"])

	code, out = api.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": plain.refresh})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid or revoked refresh token", out["message"])
}

func TestTaskLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := api.register("lead@example.com", "admin")
	owner := api.register("owner@example.com", "")
	other := api.register("other@example.com", "")

	code, out := api.do(http.MethodPost, "/v1/tasks", owner.access, map[string]string{
		"title": "Write report", "description": "Quarterly numbers for the team",
	})
	require.Equal(t, http.StatusCreated, code, out)
	task := out["task"].(map[string]any)
	id := task["id"].(string)
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, "owner@example.com", task["createdBy"].(map[string]any)["email"])

	code, out = api.do(http.MethodGet, "/v1/tasks/"+id, other.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, out["message"], "Access denied")

	code, out = api.do(http.MethodPatch, "/v1/tasks/"+id+"/toggle", owner.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", out["task"].(map[string]any)["status"])

	code, out = api.do(http.MethodPatch, "/v1/tasks/"+id, owner.access, map[string]string{"assignedTo": other.id})
	require.Equal(t, http.StatusOK, code, out)

	code, out = api.do(http.MethodGet, "/v1/tasks?status=completed&limit=5", other.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["tasks"], 1)
	assert.Equal(t, false, out["hasMore"])
	assert.Nil(t, out["nextCursor"])
	assert.EqualValues(t, 5, out["limit"])

	code, out = api.do(http.MethodGet, "/v1/tasks/stats", owner.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["stats"].(map[string]any)["completed"])

	code, _ = api.do(http.MethodGet, "/v1/tasks?sortBy=password", owner.access, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = api.do(http.MethodDelete, "/v1/tasks/"+id, owner.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. admin privileges required.", out["message"])

	code, out = api.do(http.MethodDelete, "/v1/tasks/"+id, admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task deleted successfully", out["message"])

	code, out = api.do(http.MethodGet, "/v1/tasks/"+id, owner.access, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Task not found", out["message"])
}

func TestAuthGateAndOperationalRoutes(t *testing.T) {
	api := newTestAPI(t)

	code, out := api.do(http.MethodGet, "/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No token provided. Please log in.", out["message"])

	code, out = api.do(http.MethodGet, "/v1/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid token. Please log in again.", out["message"])

	code, out = api.do(http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route /v1/nope not found", out["message"])

	code, out = api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRegistrationInvalidatesCachedUserList(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	api := newTestAPIWithRedis(t, rdb)

	admin := api.register("admin@example.com", "admin")
	for i := 0; i < 2; i++ {
		code, out := api.do(http.MethodGet, "/v1/users", admin.access, nil)
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, out["count"])
	}

	api.register("second@example.com", "")

	code, out := api.do(http.MethodGet, "/v1/users", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["count"])
}
