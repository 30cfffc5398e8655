package users

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// Handler handles HTTP requests for users
type Handler struct {
	repo *Repository
}

// NewHandler creates a new user handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Me returns the authenticated user
// @Router /api/users/me [get]
func (h *Handler) Me(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	u, err := h.repo.GetByID(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u.ToDTO())
}

// Known lists users that share a group with the caller, optionally filtered
// by a comma separated ?emails= list.
// @Router /api/users/known [get]
func (h *Handler) Known(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var emails []string
	if raw := c.QueryParam("emails"); raw != "" {
		emails = strings.Split(raw, ",")
	}

	known, err := h.repo.KnownUsers(c.Request().Context(), user.ID, emails)
	if err != nil {
		return err
	}

	out := make([]UserDTO, len(known))
	for i := range known {
		out[i] = known[i].ToDTO()
	}
	return c.JSON(http.StatusOK, out)
}
