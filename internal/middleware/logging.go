package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/logger"
)

// RequestLogger logs one line per request and stores a request-scoped
// logger, tagged with the request id and trace ids, in the request context
// for handlers to pick up with logger.FromContext. It must run after
// echo's RequestID middleware.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)

			l := logger.WithTrace(req.Context(), base).With(slog.String("request_id", reqID))
			c.SetRequest(req.WithContext(logger.NewContext(req.Context(), l)))

			err := next(c)

			status := responseStatus(c, err)
			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
			}
			if id, ok := IdentityFrom(c); ok {
				attrs = append(attrs, slog.String("user_id", id.User.ID))
			}
			switch {
			case status >= 500:
				l.Error("request failed", append(attrs, slog.Any("error", err))...)
			case status >= 400:
				l.Warn("request rejected", attrs...)
			default:
				l.Info("request completed", attrs...)
			}
			return err
		}
	}
}
