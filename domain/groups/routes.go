package groups

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers group routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/groups")
	g.Use(authMiddleware.RequireAuth())

	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
