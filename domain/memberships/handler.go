package memberships

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// genericInviteReply is returned for every invite-by-email call so that the
// response does not reveal whether an address is registered.
const genericInviteReply = "If the email belongs to a registered user, they have been invited."

// Handler serves member management for groups and things.
type Handler struct {
	svc *Service
}

// NewHandler creates a new membership handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) resolve(c echo.Context, kind TargetType) (*users.User, *Set, error) {
	caller := users.FromAuth(auth.GetUser(c))
	if caller == nil {
		return nil, nil, apperror.ErrUnauthorized
	}
	set, err := h.svc.GetForMember(c.Request().Context(), Ref{Type: kind, ID: c.Param("id")}, caller.ID)
	if err != nil {
		return nil, nil, err
	}
	return caller, set, nil
}

// List returns the members of a group or thing
// @Router /api/{kind}/{id}/members [get]
func (h *Handler) List(kind TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, set, err := h.resolve(c, kind)
		if err != nil {
			return err
		}

		out := []MemberDTO{{UserID: set.OwnerID, IsOwner: true}}
		for _, id := range set.UserIDs {
			if id != set.OwnerID {
				out = append(out, MemberDTO{UserID: id})
			}
		}
		return c.JSON(http.StatusOK, out)
	}
}

// AddMembers adds users from groups and known emails, inviting the rest.
// Only the owner may call it.
// @Router /api/{kind}/{id}/members [post]
func (h *Handler) AddMembers(kind TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, set, err := h.resolve(c, kind)
		if err != nil {
			return err
		}
		if !IsOwner(caller.ID, set) {
			return apperror.NewForbidden("Only the owner can add members")
		}

		var req AddMembersRequest
		if err := c.Bind(&req); err != nil {
			return apperror.ErrBadRequest.WithMessage("invalid request body")
		}
		if len(req.Groups) == 0 && len(req.Users) == 0 {
			return apperror.NewBadRequest("groups or users is required")
		}

		result, err := h.svc.AddMembers(c.Request().Context(), set, caller, req)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	}
}

// Invite invites one email address. Thing invitations are owner-only; any
// group member may invite to the group.
// @Router /api/{kind}/{id}/invite [post]
func (h *Handler) Invite(kind TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, set, err := h.resolve(c, kind)
		if err != nil {
			return err
		}
		if kind == TargetThing && !IsOwner(caller.ID, set) {
			return apperror.NewForbidden("Only the owner can invite members")
		}

		var req InviteRequest
		if err := c.Bind(&req); err != nil {
			return apperror.ErrBadRequest.WithMessage("invalid request body")
		}
		email := users.NormalizeEmail(req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return apperror.NewBadRequest("a valid email is required")
		}

		status, found, err := h.svc.InviteByEmail(c.Request().Context(), set, caller, email)
		if err != nil {
			return err
		}
		resp := InviteResponse{Message: genericInviteReply}
		if found && status == StatusMember {
			resp.Status = status
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// RemoveMember removes a member. The owner can remove others and members can
// leave; the owner cannot be removed.
// @Router /api/{kind}/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(kind TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, set, err := h.resolve(c, kind)
		if err != nil {
			return err
		}
		target := c.Param("userId")
		if target == set.OwnerID {
			return apperror.NewBadRequest("The owner cannot be removed")
		}
		if !CanRemoveMember(caller.ID, target, set) {
			return apperror.NewForbidden("Only the owner can remove other members")
		}

		if err := h.svc.RemoveMember(c.Request().Context(), set.Ref, target); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
