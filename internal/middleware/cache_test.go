package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      []string{"GET"},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

// withIdentity stands in for Authenticate.
func withIdentity(userID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if userID == "" {
				return next(c)
			}
			id := Identity{User: model.User{ID: userID}, Role: model.RoleUser}
			ctx := context.WithValue(c.Request().Context(), identityKey{}, id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

type cacheHarness struct {
	e     *echo.Echo
	calls int
}

func newCacheHarness(cfg config.CacheConfig, rdb *redis.Client) *cacheHarness {
	h := &cacheHarness{e: echo.New()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return withIdentity(c.Request().Header.Get("X-Test-User"))(next)(c)
		}
	})
	h.e.Use(NewRedisCache(cfg, rdb, log))
	h.e.GET("/v1/tasks", func(c echo.Context) error {
		h.calls++
		return c.JSON(http.StatusOK, map[string]int{"calls": h.calls})
	})
	h.e.POST("/v1/tasks", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	return h
}

func (h *cacheHarness) do(method, target, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func TestRedisCache_HitAfterMiss(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	h := newCacheHarness(testCacheConfig(), rdb)

	first := h.do(http.MethodGet, "/v1/tasks?limit=5", "u1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := h.do(http.MethodGet, "/v1/tasks?limit=5", "u1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, h.calls)
}

func TestRedisCache_KeyedPerUserAndQuery(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	h := newCacheHarness(testCacheConfig(), rdb)

	h.do(http.MethodGet, "/v1/tasks", "u1")
	other := h.do(http.MethodGet, "/v1/tasks", "u2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	query := h.do(http.MethodGet, "/v1/tasks?status=pending", "u1")
	assert.Equal(t, "MISS", query.Header().Get("X-Cache"))
	assert.Equal(t, 3, h.calls)
}

func TestRedisCache_WriteInvalidates(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	h := newCacheHarness(testCacheConfig(), rdb)

	h.do(http.MethodGet, "/v1/tasks", "u1")
	rec := h.do(http.MethodPost, "/v1/tasks", "u2")
	require.Equal(t, http.StatusCreated, rec.Code)

	gen, err := mr.Get("cache:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	again := h.do(http.MethodGet, "/v1/tasks", "u1")
	assert.Equal(t, "MISS", again.Header().Get("X-Cache"))
	assert.Equal(t, 2, h.calls)
}

func TestRedisCache_SkipsAnonymousAndErrors(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	h := newCacheHarness(testCacheConfig(), rdb)

	rec := h.do(http.MethodGet, "/v1/tasks", "")
	assert.Empty(t, rec.Header().Get("X-Cache"))

	rec = h.do(http.MethodGet, "/v1/missing", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, mr.Keys())
}

func TestRedisCache_OversizedBodyNotStored(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	cfg := testCacheConfig()
	cfg.MaxBodyBytes = 4
	h := newCacheHarness(cfg, rdb)

	h.do(http.MethodGet, "/v1/tasks", "u1")
	rec := h.do(http.MethodGet, "/v1/tasks", "u1")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, h.calls)
}

func TestRedisCache_DisabledWithoutClient(t *testing.T) {
	h := newCacheHarness(testCacheConfig(), nil)
	h.do(http.MethodGet, "/v1/tasks", "u1")
	rec := h.do(http.MethodGet, "/v1/tasks", "u1")
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, h.calls)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestCacheInvalidator_BumpsOnAnonymousWrites(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := echo.New()
	inv := NewCacheInvalidator(testCacheConfig(), rdb, log)
	e.POST("/v1/auth/register", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, inv)
	e.POST("/v1/auth/register-bad", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "nope")
	}, inv)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/register", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	gen, err := mr.Get("cache:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/register-bad", nil))
	gen, _ = mr.Get("cache:gen")
	assert.Equal(t, "1", gen, "failed writes leave the generation alone")
}

func TestCacheInvalidator_DisabledWithoutClient(t *testing.T) {
	called := false
	mw := NewCacheInvalidator(testCacheConfig(), nil, slog.Default())
	h := mw(func(c echo.Context) error { called = true; return nil })
	require.NoError(t, h(echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())))
	assert.True(t, called)
}
