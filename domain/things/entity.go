package things

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/domain/memberships"
)

const (
	MaxNameLength        = 150
	MaxDescriptionLength = 1000
)

// Thing is a bookable resource owned by one user and shared with its members.
type Thing struct {
	bun.BaseModel `bun:"table:tb.things,alias:t"`

	ID          string    `bun:"id,pk,type:uuid"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description,notnull"`
	PictureKey  *string   `bun:"picture_key"`
	OwnerID     string    `bun:"owner_id,type:uuid,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Ref returns the membership target of the thing.
func (t *Thing) Ref() memberships.Ref {
	return memberships.ThingRef(t.ID)
}

// Rule is a house rule shown to everyone booking the thing.
type Rule struct {
	bun.BaseModel `bun:"table:tb.thing_rules,alias:r"`

	ID          string    `bun:"id,pk,type:uuid"`
	ThingID     string    `bun:"thing_id,type:uuid,notnull"`
	Short       string    `bun:"short,notnull"`
	Description string    `bun:"description,notnull"`
	Position    int       `bun:"position,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RuleRequest is the body of an add-rule call
type RuleRequest struct {
	Short       string `json:"short"`
	Description string `json:"description"`
}

// RuleUpdateRequest is the body of an update-rule call; nil fields are kept.
type RuleUpdateRequest struct {
	Short       *string `json:"short,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateThingRequest is the body of a create call. Members and Groups are
// handled like an add-members call made right after creation.
type CreateThingRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Members     []string      `json:"members,omitempty"`
	Groups      []string      `json:"groups,omitempty"`
	Rules       []RuleRequest `json:"rules,omitempty"`
}

// UpdateThingRequest is the body of an update call; nil fields are kept.
type UpdateThingRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ThingDTO is the response representation of a thing
type ThingDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PictureURL  string    `json:"pictureUrl,omitempty"`
	OwnerID     string    `json:"ownerId"`
	IsOwner     bool      `json:"isOwner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToDTO converts a thing to its response form as seen by viewerID
func (t *Thing) ToDTO(viewerID, pictureURL string) ThingDTO {
	return ThingDTO{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		PictureURL:  pictureURL,
		OwnerID:     t.OwnerID,
		IsOwner:     t.OwnerID == viewerID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// RuleDTO is the response representation of a rule
type RuleDTO struct {
	ID          string `json:"id"`
	Short       string `json:"short"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

// ToDTO converts a rule to its response form
func (r *Rule) ToDTO() RuleDTO {
	return RuleDTO{ID: r.ID, Short: r.Short, Description: r.Description, Position: r.Position}
}

// CreateThingResponse is returned from create
type CreateThingResponse struct {
	Thing   ThingDTO                      `json:"thing"`
	Members *memberships.AddMembersResult `json:"members,omitempty"`
}
