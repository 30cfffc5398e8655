// Package invites issues and redeems single-use, time-limited invitation
// tokens that grant membership of a group or a thing.
package invites

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/notify"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
	"github.com/erlendps/thingbooker/pkg/tracing"
)

// Store persists invite tokens.
type Store interface {
	// WithInviteLock runs fn in a transaction that is serialized with every
	// other invite of userID to ref.
	WithInviteLock(ctx context.Context, ref memberships.Ref, userID string, fn func(ctx context.Context, tx Tx) error) error
	// WithinTx runs fn in a transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// FindByHash returns the token of userID with the given hash, or nil.
	FindByHash(ctx context.Context, kind memberships.TargetType, userID, hash string) (*InviteToken, error)
	// List returns every token issued for ref, newest first.
	List(ctx context.Context, ref memberships.Ref) ([]InviteToken, error)
}

// Tx is the transactional part of the store.
type Tx interface {
	FindActive(ctx context.Context, ref memberships.Ref, userID string, now time.Time) (*InviteToken, error)
	Insert(ctx context.Context, tok *InviteToken) error
	// Consume marks the token used if it is still unused and unexpired at
	// now, and reports whether it did.
	Consume(ctx context.Context, id string, now time.Time) (bool, error)
	AddMember(ctx context.Context, ref memberships.Ref, userID string) error
}

// Service issues and redeems invite tokens.
type Service struct {
	store         Store
	notifier      *notify.Dispatcher
	ttl           time.Duration
	byteLength    int
	clientBaseURL string
	now           func() time.Time
	log           *slog.Logger
}

// NewService creates a new invites service
func NewService(store Store, notifier *notify.Dispatcher, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:         store,
		notifier:      notifier,
		ttl:           cfg.Invite.TokenTTL,
		byteLength:    cfg.Invite.TokenByteLength,
		clientBaseURL: strings.TrimRight(cfg.ClientBaseURL, "/"),
		now:           time.Now,
		log:           log.With(logger.Scope("invites.svc")),
	}
}

// Invite creates a token for invited to join set and mails the accept link.
// Members get StatusMember and users holding an active token get
// StatusAlreadyInvited; neither creates a token or sends mail.
func (s *Service) Invite(ctx context.Context, set *memberships.Set, invited, inviter *users.User) (memberships.Status, error) {
	if set.Contains(invited.ID) {
		return memberships.StatusMember, nil
	}

	var (
		status memberships.Status
		raw    string
		tok    *InviteToken
	)
	err := s.store.WithInviteLock(ctx, set.Ref, invited.ID, func(ctx context.Context, tx Tx) error {
		now := s.now()
		active, err := tx.FindActive(ctx, set.Ref, invited.ID, now)
		if err != nil {
			return err
		}
		if active != nil {
			status = memberships.StatusAlreadyInvited
			return nil
		}

		raw, err = GenerateToken(s.byteLength)
		if err != nil {
			return apperror.NewInternal("failed to generate invite token", err)
		}
		tok = &InviteToken{
			ID:         uuid.NewString(),
			TargetType: set.Ref.Type,
			TargetID:   set.Ref.ID,
			UserID:     invited.ID,
			TokenHash:  HashToken(raw),
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		if inviter != nil && inviter.ID != "" {
			tok.InvitedBy = &inviter.ID
		}
		if err := tx.Insert(ctx, tok); err != nil {
			return err
		}
		status = memberships.StatusSentInvite
		return nil
	})
	if err != nil {
		return "", err
	}

	if status == memberships.StatusSentInvite {
		invitesIssued.WithLabelValues(string(set.Ref.Type)).Inc()
		s.log.Info("invite issued",
			slog.String("target", set.Ref.Key()),
			slog.String("user_id", invited.ID),
			slog.String("token_id", tok.ID),
		)
		s.notifier.Deliver(ctx, s.inviteMessage(set, invited, inviter, raw, tok))
	}
	return status, nil
}

// AcceptInvite redeems tok. Expiry is checked before use, and neither an
// expired nor a used token changes anything. Consumption and the membership
// insert happen in one transaction.
func (s *Service) AcceptInvite(ctx context.Context, tok *InviteToken) (outcome Outcome, err error) {
	ctx, span := tracing.Start(ctx, "invites.accept",
		attribute.String("thingbooker.invite.id", tok.ID),
		attribute.String("thingbooker.invite.target", tok.Ref().Key()),
	)
	defer func() {
		span.SetAttributes(attribute.String("thingbooker.invite.outcome", string(outcome)))
		tracing.Finish(span, err)
	}()

	now := s.now()
	if tok.Expired(now) {
		return OutcomeExpired, nil
	}
	if tok.Used() {
		return OutcomeUsed, nil
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		consumed, err := tx.Consume(ctx, tok.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			// Expiry was already checked against the same instant, so
			// someone else consumed it first.
			outcome = OutcomeUsed
			return nil
		}
		if err := tx.AddMember(ctx, tok.Ref(), tok.UserID); err != nil {
			return err
		}
		outcome = OutcomeConsumed
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome == OutcomeConsumed {
		used := now
		tok.UsedAt = &used
		s.log.Info("invite consumed",
			slog.String("target", tok.Ref().Key()),
			slog.String("user_id", tok.UserID),
		)
	}
	return outcome, nil
}

// AcceptByToken looks up raw among userID's tokens for kind and redeems it.
// Unknown tokens and tokens of other users are indistinguishable.
func (s *Service) AcceptByToken(ctx context.Context, kind memberships.TargetType, userID, raw string) (*AcceptResult, error) {
	tok, err := s.store.FindByHash(ctx, kind, userID, HashToken(raw))
	if err != nil {
		return nil, err
	}
	if tok == nil {
		invitesAccepted.WithLabelValues(string(kind), "not_found").Inc()
		return nil, apperror.NewNotFound("Invite")
	}

	outcome, err := s.AcceptInvite(ctx, tok)
	if err != nil {
		return nil, err
	}
	invitesAccepted.WithLabelValues(string(kind), string(outcome)).Inc()
	return &AcceptResult{Status: outcome, TargetType: string(tok.TargetType), TargetID: tok.TargetID}, nil
}

// List returns the audit view of every token issued for ref.
func (s *Service) List(ctx context.Context, ref memberships.Ref) ([]TokenDTO, error) {
	tokens, err := s.store.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]TokenDTO, len(tokens))
	for i := range tokens {
		out[i] = tokens[i].ToDTO()
	}
	return out, nil
}

// AcceptURL is the client link a user follows to redeem raw.
func (s *Service) AcceptURL(kind memberships.TargetType, raw string) string {
	return fmt.Sprintf("%s/invites/%ss/accept/%s", s.clientBaseURL, kind, raw)
}

func (s *Service) inviteMessage(set *memberships.Set, invited, inviter *users.User, raw string, tok *InviteToken) notify.Message {
	template, subject := notify.TemplateInviteUserToGroup, fmt.Sprintf("You have been invited to join %s", set.Name)
	if set.Ref.Type == memberships.TargetThing {
		template, subject = notify.TemplateInviteUserToThing, fmt.Sprintf("You have been invited to use %s", set.Name)
	}

	inviterName := ""
	if inviter != nil {
		inviterName = inviter.Name()
	}
	return notify.Message{
		Template: template,
		To:       invited.Email,
		ToName:   invited.DisplayName,
		Subject:  subject,
		Data: map[string]any{
			"recipientName": invited.Name(),
			"inviterName":   inviterName,
			"targetName":    set.Name,
			"targetType":    string(set.Ref.Type),
			"acceptUrl":     s.AcceptURL(set.Ref.Type, raw),
			"expiresAt":     tok.ExpiresAt.Format(time.RFC1123),
		},
		SourceType: "invite_token",
		SourceID:   tok.ID,
	}
}
