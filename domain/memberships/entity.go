package memberships

import (
	"time"

	"github.com/uptrace/bun"
)

// TargetType names what a membership set belongs to.
type TargetType string

const (
	TargetGroup TargetType = "group"
	TargetThing TargetType = "thing"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	return t == TargetGroup || t == TargetThing
}

// Ref identifies a group or a thing.
type Ref struct {
	Type TargetType
	ID   string
}

// GroupRef returns the reference to a group.
func GroupRef(id string) Ref { return Ref{Type: TargetGroup, ID: id} }

// ThingRef returns the reference to a thing.
func ThingRef(id string) Ref { return Ref{Type: TargetThing, ID: id} }

// Key is a stable string form of the reference.
func (r Ref) Key() string { return string(r.Type) + ":" + r.ID }

// Set is the resolved member set of a target. The owner is always a member,
// whether or not a membership row exists for them.
type Set struct {
	Ref     Ref
	Name    string
	OwnerID string
	UserIDs []string
}

// Contains reports whether userID is the owner or a listed member.
func (s *Set) Contains(userID string) bool {
	if s == nil || userID == "" {
		return false
	}
	if s.OwnerID == userID {
		return true
	}
	for _, id := range s.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Status is the outcome of asking for a user to become a member.
type Status string

const (
	StatusMember         Status = "member"
	StatusSentInvite     Status = "sent_invite"
	StatusAlreadyInvited Status = "already_invited"
	StatusNotMember      Status = "not_member"
)

// Membership is one row of a member set.
type Membership struct {
	bun.BaseModel `bun:"table:tb.memberships,alias:m"`

	TargetType TargetType `bun:"target_type,pk"`
	TargetID   string     `bun:"target_id,pk,type:uuid"`
	UserID     string     `bun:"user_id,pk,type:uuid"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// AddMembersRequest is the body of an add-members call. Groups contributes
// every member of each listed group; Users holds email addresses.
type AddMembersRequest struct {
	Groups []string `json:"groups"`
	Users  []string `json:"users"`
}

// AddMembersResult reports who was added directly and what happened to each
// email that had to go through an invitation.
type AddMembersResult struct {
	Added   []string          `json:"added"`
	Invited map[string]Status `json:"invited"`
}

// InviteRequest is the body of an invite-by-email call
type InviteRequest struct {
	Email string `json:"email"`
}

// InviteResponse is deliberately the same whether or not the email belongs
// to a registered user.
type InviteResponse struct {
	Message string `json:"message"`
	Status  Status `json:"status,omitempty"`
}

// MemberDTO lists one member of a set
type MemberDTO struct {
	UserID  string `json:"userId"`
	IsOwner bool   `json:"isOwner"`
}
