package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmails(t *testing.T) {
	got := NormalizeEmails([]string{" Ada@Example.com", "ada@example.com", "", "bob@example.com  ", "BOB@EXAMPLE.COM"})
	assert.Equal(t, []string{"ada@example.com", "bob@example.com"}, got)
}

func TestUserName(t *testing.T) {
	u := &User{Email: "ada@example.com"}
	assert.Equal(t, "ada@example.com", u.Name())

	u.DisplayName = "Ada"
	assert.Equal(t, "Ada", u.Name())
	assert.Equal(t, UserDTO{Email: "ada@example.com", DisplayName: "Ada"}, u.ToDTO())
}
