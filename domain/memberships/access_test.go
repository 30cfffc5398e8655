package memberships

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetContains(t *testing.T) {
	set := &Set{OwnerID: "owner", UserIDs: []string{"a", "b"}}

	assert.True(t, set.Contains("owner"), "owner is always a member")
	assert.True(t, set.Contains("a"))
	assert.False(t, set.Contains("c"))
	assert.False(t, set.Contains(""))

	var missing *Set
	assert.False(t, missing.Contains("owner"))
}

func TestCapabilities(t *testing.T) {
	assert.True(t, CanManageBooking("owner", "owner"))
	assert.False(t, CanManageBooking("booker", "owner"))
	assert.False(t, CanManageBooking("", ""))

	assert.True(t, CanModifyBooking("owner", "owner", "booker"))
	assert.True(t, CanModifyBooking("booker", "owner", "booker"))
	assert.False(t, CanModifyBooking("other", "owner", "booker"))
}

func TestCanRemoveMember(t *testing.T) {
	set := &Set{OwnerID: "owner", UserIDs: []string{"owner", "a", "b"}}

	tests := []struct {
		name          string
		actor, target string
		want          bool
	}{
		{"owner removes member", "owner", "a", true},
		{"member leaves", "a", "a", true},
		{"member removes other", "a", "b", false},
		{"nobody removes owner", "owner", "owner", false},
		{"outsider leaves", "x", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanRemoveMember(tt.actor, tt.target, set))
		})
	}
}
