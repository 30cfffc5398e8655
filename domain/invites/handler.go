package invites

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/auth"
)

// MemberSets resolves owners for the audit listing.
type MemberSets interface {
	Get(ctx context.Context, ref memberships.Ref) (*memberships.Set, error)
}

// Handler handles HTTP requests for invites
type Handler struct {
	svc     *Service
	members MemberSets
	limiter *AcceptLimiter
}

// NewHandler creates a new invites handler
func NewHandler(svc *Service, members MemberSets, limiter *AcceptLimiter) *Handler {
	return &Handler{svc: svc, members: members, limiter: limiter}
}

var outcomeStatus = map[Outcome]int{
	OutcomeConsumed: http.StatusOK,
	OutcomeUsed:     http.StatusConflict,
	OutcomeExpired:  http.StatusGone,
}

// Accept redeems an invite token for the authenticated user
// @Router /api/invites/{kind}s/accept/{token} [post]
func (h *Handler) Accept(kind memberships.TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := auth.GetUser(c)
		if user == nil {
			return apperror.ErrUnauthorized
		}
		if !h.limiter.Allow(user.ID) {
			return apperror.ErrRateLimited
		}

		token := c.Param("token")
		if token == "" {
			return apperror.NewBadRequest("token is required")
		}

		result, err := h.svc.AcceptByToken(c.Request().Context(), kind, user.ID, token)
		if err != nil {
			return err
		}
		return c.JSON(outcomeStatus[result.Status], result)
	}
}

// List returns the audit view of the tokens issued for a group or thing.
// Only the owner may see it.
// @Router /api/{kind}s/{id}/invites [get]
func (h *Handler) List(kind memberships.TargetType) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := auth.GetUser(c)
		if user == nil {
			return apperror.ErrUnauthorized
		}

		ref := memberships.Ref{Type: kind, ID: c.Param("id")}
		set, err := h.members.Get(c.Request().Context(), ref)
		if err != nil {
			return err
		}
		if !memberships.IsMember(user.ID, set) {
			return apperror.NewNotFound(string(kind))
		}
		if !memberships.IsOwner(user.ID, set) {
			return apperror.NewForbidden("Only the owner can list invites")
		}

		tokens, err := h.svc.List(c.Request().Context(), ref)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tokens)
	}
}
