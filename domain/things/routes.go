package things

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers thing routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/things")
	g.Use(authMiddleware.RequireAuth())

	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/rules", h.ListRules)
	g.POST("/:id/rules", h.AddRule)
	g.PATCH("/:id/rules/:ruleId", h.UpdateRule)
	g.DELETE("/:id/rules/:ruleId", h.DeleteRule)
	g.PUT("/:id/picture", h.UploadPicture)
}
