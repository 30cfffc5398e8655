package memberships

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers member management routes for groups and things
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	for prefix, kind := range map[string]TargetType{
		"/api/groups": TargetGroup,
		"/api/things": TargetThing,
	} {
		g := e.Group(prefix)
		g.Use(authMiddleware.RequireAuth())

		g.GET("/:id/members", h.List(kind))
		g.POST("/:id/members", h.AddMembers(kind))
		g.DELETE("/:id/members/:userId", h.RemoveMember(kind))
		g.POST("/:id/invite", h.Invite(kind))
	}
}
