package invites

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/domain/memberships"
)

// Outcome is the result of presenting an invite token.
type Outcome string

const (
	OutcomeExpired  Outcome = "token_expired"
	OutcomeUsed     Outcome = "token_used"
	OutcomeConsumed Outcome = "token_consumed"
)

// InviteToken grants one user membership of one group or thing. Only the
// SHA-256 of the raw token is stored.
type InviteToken struct {
	bun.BaseModel `bun:"table:tb.invite_tokens,alias:it"`

	ID         string                 `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TargetType memberships.TargetType `bun:"target_type,notnull"`
	TargetID   string                 `bun:"target_id,type:uuid,notnull"`
	UserID     string                 `bun:"user_id,type:uuid,notnull"`
	TokenHash  string                 `bun:"token_hash,notnull"`
	InvitedBy  *string                `bun:"invited_by,type:uuid"`
	CreatedAt  time.Time              `bun:"created_at,notnull"`
	ExpiresAt  time.Time              `bun:"expires_at,notnull"`
	UsedAt     *time.Time             `bun:"used_at"`
}

// Ref returns the target the token grants membership of.
func (t *InviteToken) Ref() memberships.Ref {
	return memberships.Ref{Type: t.TargetType, ID: t.TargetID}
}

// Expired reports whether the token is past its expiry at now. A token
// expiring exactly at now is still valid.
func (t *InviteToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Used reports whether the token has been consumed.
func (t *InviteToken) Used() bool {
	return t.UsedAt != nil
}

// Active reports whether the token can still be consumed at now.
func (t *InviteToken) Active(now time.Time) bool {
	return !t.Used() && !t.Expired(now)
}

// TokenDTO is the audit view of a token. The raw token is never exposed.
type TokenDTO struct {
	ID         string     `json:"id"`
	TargetType string     `json:"targetType"`
	TargetID   string     `json:"targetId"`
	UserID     string     `json:"userId"`
	TokenHash  string     `json:"tokenHash"`
	InvitedBy  *string    `json:"invitedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
}

// ToDTO converts a token to its audit view
func (t *InviteToken) ToDTO() TokenDTO {
	return TokenDTO{
		ID:         t.ID,
		TargetType: string(t.TargetType),
		TargetID:   t.TargetID,
		UserID:     t.UserID,
		TokenHash:  t.TokenHash,
		InvitedBy:  t.InvitedBy,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
		UsedAt:     t.UsedAt,
	}
}

// AcceptResult is returned from the accept endpoint
type AcceptResult struct {
	Status     Outcome `json:"status"`
	TargetType string  `json:"targetType"`
	TargetID   string  `json:"targetId"`
}
