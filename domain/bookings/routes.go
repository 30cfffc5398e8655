package bookings

import (
	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// RegisterRoutes registers booking routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/things/:id/bookings")
	g.Use(authMiddleware.RequireAuth())

	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:bookingId", h.Get)
	g.PATCH("/:bookingId", h.Update)
	g.DELETE("/:bookingId", h.Delete)
	g.POST("/:bookingId/accept", h.Accept)
	g.POST("/:bookingId/decline", h.Decline)
	g.PUT("/:bookingId/status", h.UpdateStatus)

	mine := e.Group("/api/bookings")
	mine.Use(authMiddleware.RequireAuth())
	mine.GET("", h.ListMine)
}
