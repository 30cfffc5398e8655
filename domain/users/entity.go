package users

import (
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// User is a registered person. Rows are created the first time an identity
// provider token for the user is seen.
type User struct {
	bun.BaseModel `bun:"table:tb.users,alias:u"`

	ID          string    `bun:"id,pk,type:uuid" json:"id"`
	Email       string    `bun:"email,notnull" json:"email"`
	DisplayName string    `bun:"display_name,notnull" json:"displayName"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Name returns the display name, falling back to the email address.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// UserDTO is the public representation of a user
type UserDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// ToDTO converts a User to its public form
func (u *User) ToDTO() UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeEmails normalizes, drops empties and de-duplicates, keeping order.
func NormalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// FromAuth builds the user an authenticated request acts as.
func FromAuth(a *auth.AuthUser) *User {
	if a == nil {
		return nil
	}
	return &User{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}
