// Package router registers the HTTP routes of the API on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints under /v1/auth. None of them
// takes an access token; logout identifies the session by its refresh
// token. onRegister wraps registration only, the one session endpoint that
// changes what the user listings return.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, onRegister ...echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, onRegister...)
	g.POST("/signin", a.SignIn)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}

// RegisterUsers registers the account endpoints under /v1/users. authn
// is the authentication gate; extra middleware (the response cache) runs
// after it.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, authn echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) {
	g := e.Group("/v1/users", append([]echo.MiddlewareFunc{authn}, extra...)...)
	admin := middleware.RequireAdmin()

	g.GET("/me", u.Me)
	g.GET("", u.List, admin)
	g.GET("/:id", u.Get)
	g.PATCH("/:id/role", u.UpdateRole, admin)
	g.PATCH("/:id/active", u.SetActive, admin)
}

// RegisterTasks registers the task endpoints under /v1/tasks. Every route
// requires authentication; deletion also requires the admin role.
func RegisterTasks(e *echo.Echo, t *handler.TaskHandler, authn echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) {
	g := e.Group("/v1/tasks", append([]echo.MiddlewareFunc{authn}, extra...)...)

	g.GET("/stats", t.Stats)
	g.GET("", t.List)
	g.POST("", t.Create)
	g.GET("/:id", t.Get)
	g.PATCH("/:id", t.Update)
	g.PATCH("/:id/toggle", t.Toggle)
	g.DELETE("/:id", t.Delete, middleware.RequireAdmin())
}
