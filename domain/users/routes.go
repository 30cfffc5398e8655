package users

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers user routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/users")
	g.Use(authMiddleware.RequireAuth())

	g.GET("/me", h.Me)
	g.GET("/known", h.Known)
}
