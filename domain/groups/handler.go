package groups

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// Handler handles HTTP requests for groups
type Handler struct {
	svc *Service
}

// NewHandler creates a new groups handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns the user's groups
// @Router /api/groups [get]
func (h *Handler) List(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	groups, err := h.svc.List(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	out := make([]GroupDTO, len(groups))
	for i := range groups {
		out[i] = groups[i].ToDTO(user.ID)
	}
	return c.JSON(http.StatusOK, out)
}

// Create creates a group owned by the user
// @Router /api/groups [post]
func (h *Handler) Create(c echo.Context) error {
	caller := users.FromAuth(auth.GetUser(c))
	if caller == nil {
		return apperror.ErrUnauthorized
	}

	var req CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	group, added, err := h.svc.Create(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"group":   group.ToDTO(caller.ID),
		"members": added,
	})
}

// Get returns a group with its members
// @Router /api/groups/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	group, members, err := h.svc.GetForMember(c.Request().Context(), c.Param("id"), user.ID)
	if err != nil {
		return err
	}
	dto := group.ToDTO(user.ID)
	dto.Members = make([]users.UserDTO, len(members))
	for i := range members {
		dto.Members[i] = members[i].ToDTO()
	}
	return c.JSON(http.StatusOK, dto)
}

// Update renames a group
// @Router /api/groups/{id} [patch]
func (h *Handler) Update(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req UpdateGroupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	group, err := h.svc.Update(c.Request().Context(), c.Param("id"), user.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, group.ToDTO(user.ID))
}

// Delete removes a group
// @Router /api/groups/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), user.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
