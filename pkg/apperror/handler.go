package apperror

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/logger"
)

var statusCodes = map[int]string{
	http.StatusUnauthorized:          "unauthorized",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusBadRequest:            "bad_request",
	http.StatusConflict:              "conflict",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusRequestEntityTooLarge: "payload_too_large",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusUnprocessableEntity:   "validation_error",
}

// HTTPErrorHandler returns an Echo error handler rendering every error as
// {"error": {"code", "message", "details"?}}.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := map[string]any{
			"code":    "internal_error",
			"message": "An internal error occurred",
		}

		if appErr, ok := As(err); ok {
			code = appErr.HTTPStatus
			body = appErr.body()
		} else if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			switch msg := he.Message.(type) {
			case map[string]any:
				if inner, ok := msg["error"].(map[string]any); ok {
					for k, v := range inner {
						body[k] = v
					}
				}
			case string:
				body["message"] = msg
				if c, ok := statusCodes[code]; ok {
					body["code"] = c
				}
			}
		}

		if code >= 500 {
			log.Error("request error",
				slog.Int("status", code),
				slog.String("path", c.Request().URL.Path),
				logger.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]any{"error": body})
	}
}
