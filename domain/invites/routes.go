package invites

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers invite routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/invites")
	g.Use(authMiddleware.RequireAuth())
	g.POST("/groups/accept/:token", h.Accept(memberships.TargetGroup))
	g.POST("/things/accept/:token", h.Accept(memberships.TargetThing))

	requireAuth := authMiddleware.RequireAuth()
	e.GET("/api/groups/:id/invites", h.List(memberships.TargetGroup), requireAuth)
	e.GET("/api/things/:id/invites", h.List(memberships.TargetThing), requireAuth)
}
