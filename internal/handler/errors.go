package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/logger"
)

// errorResponse is the envelope of every failed request.
type errorResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

// NewHTTPErrorHandler renders errors returned by handlers and middleware.
// *apperr.Error values are shown as is, echo's own errors (unknown route,
// wrong method, oversized body) are mapped to the same envelope, and
// anything else becomes a 500. The cause is never shown to clients (the
// request logger records it) unless debug is set, in which case it is
// echoed back as "stack".
func NewHTTPErrorHandler(debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := errorResponse{Status: "error"}
		status := http.StatusInternalServerError
		var he *echo.HTTPError

		if e, ok := apperr.As(err); ok {
			status, resp.Message, resp.Errors = e.Status, e.Message, e.Fields
		} else if errors.As(err, &he) {
			status = he.Code
			switch he.Code {
			case http.StatusNotFound:
				resp.Message = fmt.Sprintf("Route %s not found", c.Request().URL.RequestURI())
			default:
				resp.Message = http.StatusText(he.Code)
				if m, ok := he.Message.(string); ok && m != "" {
					resp.Message = m
				}
			}
		}

		if status >= http.StatusInternalServerError {
			resp.Message = "Internal Server Error"
			if debug {
				resp.Stack = err.Error()
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, resp)
		}
		if werr != nil {
			logger.FromContext(c.Request().Context()).Warn("write error response", slog.Any("error", werr))
		}
	}
}
