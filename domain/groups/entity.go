package groups

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/users"
)

// MaxNameLength bounds group names.
const MaxNameLength = 150

// Group is a named set of users. Things can be shared with all members of
// a group at once.
type Group struct {
	bun.BaseModel `bun:"table:tb.groups,alias:g"`

	ID        string    `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	OwnerID   string    `bun:"owner_id,type:uuid,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Ref returns the membership target of the group.
func (g *Group) Ref() memberships.Ref {
	return memberships.GroupRef(g.ID)
}

// CreateGroupRequest is the body of a create call
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

// UpdateGroupRequest is the body of an update call
type UpdateGroupRequest struct {
	Name string `json:"name"`
}

// GroupDTO is the response representation of a group
type GroupDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	OwnerID   string          `json:"ownerId"`
	IsOwner   bool            `json:"isOwner"`
	Members   []users.UserDTO `json:"members,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ToDTO converts a group to its response form as seen by viewerID
func (g *Group) ToDTO(viewerID string) GroupDTO {
	return GroupDTO{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		IsOwner:   g.OwnerID == viewerID,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}
