package bookings

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/things"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// Things resolves the thing a booking route refers to.
type Things interface {
	GetForMember(ctx context.Context, id, userID string) (*things.Thing, *memberships.Set, error)
}

// Handler handles HTTP requests for bookings
type Handler struct {
	svc    *Service
	things Things
}

// NewHandler creates a new bookings handler
func NewHandler(svc *Service, things Things) *Handler {
	return &Handler{svc: svc, things: things}
}

// resolve returns the caller and the thing from the :id parameter. Non-members
// get NotFound.
func (h *Handler) resolve(c echo.Context) (*users.User, *things.Thing, error) {
	caller := users.FromAuth(auth.GetUser(c))
	if caller == nil {
		return nil, nil, apperror.ErrUnauthorized
	}
	thing, _, err := h.things.GetForMember(c.Request().Context(), c.Param("id"), caller.ID)
	if err != nil {
		return nil, nil, err
	}
	return caller, thing, nil
}

func (h *Handler) resolveForOwner(c echo.Context) (*things.Thing, error) {
	caller, thing, err := h.resolve(c)
	if err != nil {
		return nil, err
	}
	if !memberships.CanManageBooking(caller.ID, thing.OwnerID) {
		return nil, apperror.NewForbidden("Only the owner can manage bookings")
	}
	return thing, nil
}

// List returns the bookings of a thing
// @Router /api/things/{id}/bookings [get]
func (h *Handler) List(c echo.Context) error {
	_, thing, err := h.resolve(c)
	if err != nil {
		return err
	}
	list, err := h.svc.List(c.Request().Context(), thing)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToDTOs(list))
}

// Create requests a booking
// @Router /api/things/{id}/bookings [post]
func (h *Handler) Create(c echo.Context) error {
	caller, thing, err := h.resolve(c)
	if err != nil {
		return err
	}

	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return apperror.NewBadRequest("startDate and endDate are required")
	}

	booking, err := h.svc.Create(c.Request().Context(), thing, caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, booking.ToDTO())
}

// Get returns one booking
// @Router /api/things/{id}/bookings/{bookingId} [get]
func (h *Handler) Get(c echo.Context) error {
	_, thing, err := h.resolve(c)
	if err != nil {
		return err
	}
	booking, err := h.svc.Get(c.Request().Context(), thing, c.Param("bookingId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, booking.ToDTO())
}

// Update changes a waiting booking
// @Router /api/things/{id}/bookings/{bookingId} [patch]
func (h *Handler) Update(c echo.Context) error {
	caller, thing, err := h.resolve(c)
	if err != nil {
		return err
	}

	var req UpdateBookingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	booking, err := h.svc.Update(c.Request().Context(), thing, c.Param("bookingId"), caller.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, booking.ToDTO())
}

// Delete removes a booking
// @Router /api/things/{id}/bookings/{bookingId} [delete]
func (h *Handler) Delete(c echo.Context) error {
	caller, thing, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), thing, c.Param("bookingId"), caller.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Accept accepts a booking. Overlapping bookings are declined unless
// ?declineOverlapping=false.
// @Router /api/things/{id}/bookings/{bookingId}/accept [post]
func (h *Handler) Accept(c echo.Context) error {
	thing, err := h.resolveForOwner(c)
	if err != nil {
		return err
	}

	decline := true
	if v := c.QueryParam("declineOverlapping"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return apperror.NewBadRequest("declineOverlapping must be a boolean")
		}
		decline = parsed
	}

	summary, err := h.svc.Accept(c.Request().Context(), thing, c.Param("bookingId"), decline)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// Decline declines a booking
// @Router /api/things/{id}/bookings/{bookingId}/decline [post]
func (h *Handler) Decline(c echo.Context) error {
	thing, err := h.resolveForOwner(c)
	if err != nil {
		return err
	}
	booking, err := h.svc.Decline(c.Request().Context(), thing, c.Param("bookingId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, booking.ToDTO())
}

// UpdateStatus accepts or declines a booking from a status body
// @Router /api/things/{id}/bookings/{bookingId}/status [put]
func (h *Handler) UpdateStatus(c echo.Context) error {
	thing, err := h.resolveForOwner(c)
	if err != nil {
		return err
	}

	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	result, err := h.svc.UpdateStatus(c.Request().Context(), thing, c.Param("bookingId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ListMine returns the caller's own bookings across things
// @Router /api/bookings [get]
func (h *Handler) ListMine(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.ErrUnauthorized
	}
	list, err := h.svc.ListMine(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToDTOs(list))
}
