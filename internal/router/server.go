package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/service"
)

// Options are the dependencies of the HTTP server.
type Options struct {
	Log      *slog.Logger
	Debug    bool // echo internal error details in 500 responses
	Verifier middleware.AccessVerifier
	Users    middleware.UserLookup
	Sessions *service.SessionService
	Accounts *service.UserService
	Tasks    *service.TaskService
	Redis    *redis.Client // nil disables the response cache
	Cache    config.CacheConfig
}

// New builds the Echo instance with the middleware chain and every route.
func New(o Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(o.Debug)

	e.Use(
		echomw.RequestID(),
		middleware.RequestLogger(o.Log),
		echomw.Recover(),
		middleware.Metrics(),
		echomw.BodyLimit("1M"),
	)

	authn := middleware.Authenticate(o.Verifier, o.Users)
	cache := middleware.NewRedisCache(o.Cache, o.Redis, o.Log)

	RegisterRoutes(e)
	RegisterAuth(e, handler.NewAuthHandler(o.Sessions), middleware.NewCacheInvalidator(o.Cache, o.Redis, o.Log))
	RegisterUsers(e, handler.NewUserHandler(o.Accounts), authn, cache)
	RegisterTasks(e, handler.NewTaskHandler(o.Tasks), authn, cache)
	return e
}
