package things

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// Handler handles HTTP requests for things
type Handler struct {
	svc            *Service
	maxUploadBytes int64
}

// NewHandler creates a new things handler
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, maxUploadBytes: cfg.Upload.MaxBytes()}
}

// List returns the things the user owns or is a member of
// @Router /api/things [get]
func (h *Handler) List(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	ctx := c.Request().Context()
	things, err := h.svc.List(ctx, user.ID)
	if err != nil {
		return err
	}
	out := make([]ThingDTO, len(things))
	for i := range things {
		out[i] = things[i].ToDTO(user.ID, h.svc.PictureURL(ctx, &things[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Create creates a thing owned by the user
// @Router /api/things [post]
func (h *Handler) Create(c echo.Context) error {
	caller := users.FromAuth(auth.GetUser(c))
	if caller == nil {
		return apperror.ErrUnauthorized
	}

	var req CreateThingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	thing, members, err := h.svc.Create(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CreateThingResponse{Thing: thing.ToDTO(caller.ID, ""), Members: members})
}

// Get returns a thing the user is a member of
// @Router /api/things/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	ctx := c.Request().Context()
	thing, _, err := h.svc.GetForMember(ctx, c.Param("id"), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, thing.ToDTO(user.ID, h.svc.PictureURL(ctx, thing)))
}

// Update changes name and description
// @Router /api/things/{id} [patch]
func (h *Handler) Update(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req UpdateThingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	ctx := c.Request().Context()
	thing, err := h.svc.Update(ctx, c.Param("id"), user.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, thing.ToDTO(user.ID, h.svc.PictureURL(ctx, thing)))
}

// Delete removes a thing and everything attached to it
// @Router /api/things/{id} [delete]
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

// ListRules returns the rules of a thing
// @Router /api/things/{id}/rules [get]
func (h *Handler) ListRules(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	rules, err := h.svc.ListRules(c.Request().Context(), c.Param("id"), user.ID)
	if err != nil {
		return err
	}
	out := make([]RuleDTO, len(rules))
	for i := range rules {
		out[i] = rules[i].ToDTO()
	}
	return c.JSON(http.StatusOK, out)
}

// AddRule appends a rule
// @Router /api/things/{id}/rules [post]
func (h *Handler) AddRule(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req RuleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	rule, err := h.svc.AddRule(c.Request().Context(), c.Param("id"), user.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule.ToDTO())
}

// UpdateRule edits a rule
// @Router /api/things/{id}/rules/{ruleId} [patch]
func (h *Handler) UpdateRule(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	var req RuleUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	rule, err := h.svc.UpdateRule(c.Request().Context(), c.Param("id"), c.Param("ruleId"), user.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule.ToDTO())
}

// DeleteRule removes a rule
// @Router /api/things/{id}/rules/{ruleId} [delete]
func (h *Handler) DeleteRule(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	if err := h.svc.DeleteRule(c.Request().Context(), c.Param("id"), c.Param("ruleId"), user.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadPicture replaces the picture (multipart field "picture")
// @Router /api/things/{id}/picture [put]
func (h *Handler) UploadPicture(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}

	file, err := c.FormFile("picture")
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("picture is required")
	}
	if file.Size > h.maxUploadBytes {
		return apperror.ErrPayloadTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return apperror.ErrBadRequest.WithMessage("failed to read file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	ctx := c.Request().Context()
	thing, err := h.svc.SetPicture(ctx, c.Param("id"), user.ID, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, thing.ToDTO(user.ID, h.svc.PictureURL(ctx, thing)))
}
