package memberships

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
)

type memStore struct {
	mu   sync.Mutex
	sets map[string]*Set
}

func newMemStore(sets ...*Set) *memStore {
	s := &memStore{sets: map[string]*Set{}}
	for _, set := range sets {
		s.sets[set.Ref.Key()] = set
	}
	return s
}

func (s *memStore) Get(ctx context.Context, ref Ref) (*Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[ref.Key()]
	if !ok {
		return nil, apperror.NewNotFound(string(ref.Type))
	}
	cp := *set
	cp.UserIDs = append([]string(nil), set.UserIDs...)
	return &cp, nil
}

func (s *memStore) Add(ctx context.Context, ref Ref, userIDs ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[ref.Key()]
	var added []string
	for _, id := range dedupe(userIDs) {
		present := false
		for _, have := range set.UserIDs {
			if have == id {
				present = true
			}
		}
		if !present {
			set.UserIDs = append(set.UserIDs, id)
			added = append(added, id)
		}
	}
	return added, nil
}

func (s *memStore) Remove(ctx context.Context, ref Ref, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[ref.Key()]
	for i, id := range set.UserIDs {
		if id == userID {
			set.UserIDs = append(set.UserIDs[:i], set.UserIDs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// fakeDirectory models registered users and which groups they are in.
type fakeDirectory struct {
	users  []users.User
	groups map[string][]string
}

func (d *fakeDirectory) byID(id string) users.User {
	for _, u := range d.users {
		if u.ID == id {
			return u
		}
	}
	return users.User{}
}

func (d *fakeDirectory) inGroup(groupID, userID string) bool {
	for _, id := range d.groups[groupID] {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *fakeDirectory) UsersInGroups(ctx context.Context, callerID string, groupIDs []string) ([]users.User, error) {
	var out []users.User
	for _, g := range groupIDs {
		if !d.inGroup(g, callerID) {
			continue
		}
		for _, id := range d.groups[g] {
			out = append(out, d.byID(id))
		}
	}
	return out, nil
}

func (d *fakeDirectory) KnownUsers(ctx context.Context, callerID string, emails []string) ([]users.User, error) {
	var out []users.User
	for _, u := range d.users {
		if u.ID == callerID {
			continue
		}
		for g := range d.groups {
			if d.inGroup(g, callerID) && d.inGroup(g, u.ID) && contains(emails, u.Email) {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (d *fakeDirectory) FindByEmails(ctx context.Context, emails []string) ([]users.User, error) {
	var out []users.User
	for _, u := range d.users {
		if contains(emails, u.Email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeInviter struct {
	invited []string
	status  Status
}

func (f *fakeInviter) Invite(ctx context.Context, set *Set, invited, inviter *users.User) (Status, error) {
	f.invited = append(f.invited, invited.Email)
	if set.Contains(invited.ID) {
		return StatusMember, nil
	}
	return f.status, nil
}

func fixture() (*memStore, *fakeDirectory, *fakeInviter, *Service, *Set) {
	dir := &fakeDirectory{
		users: []users.User{
			{ID: "owner", Email: "owner@example.com"},
			{ID: "friend", Email: "friend@example.com"},
			{ID: "stranger", Email: "stranger@example.com"},
			{ID: "cousin", Email: "cousin@example.com"},
		},
		groups: map[string][]string{
			"family":  {"owner", "friend", "cousin"},
			"private": {"stranger"},
		},
	}
	thing := &Set{Ref: ThingRef("t1"), Name: "Cabin", OwnerID: "owner", UserIDs: []string{"owner"}}
	store := newMemStore(thing)
	inviter := &fakeInviter{status: StatusSentInvite}
	svc := NewService(store, dir, inviter, slog.Default())
	return store, dir, inviter, svc, thing
}

func TestAddMembers_KnownUsersAddedDirectly(t *testing.T) {
	store, _, inviter, svc, thing := fixture()
	caller := &users.User{ID: "owner", Email: "owner@example.com"}

	result, err := svc.AddMembers(context.Background(), thing, caller, AddMembersRequest{
		Users: []string{"Friend@Example.com", "stranger@example.com", "nobody@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"friend"}, result.Added)
	assert.Equal(t, map[string]Status{"stranger@example.com": StatusSentInvite}, result.Invited)
	assert.Equal(t, []string{"stranger@example.com"}, inviter.invited, "unknown emails are dropped")

	set, _ := store.Get(context.Background(), thing.Ref)
	assert.True(t, set.Contains("friend"))
	assert.False(t, set.Contains("stranger"))
}

func TestAddMembers_FromGroupsRequiresCallerMembership(t *testing.T) {
	_, _, _, svc, thing := fixture()
	caller := &users.User{ID: "owner"}

	result, err := svc.AddMembers(context.Background(), thing, caller, AddMembersRequest{
		Groups: []string{"family", "private"},
	})
	require.NoError(t, err)

	sort.Strings(result.Added)
	assert.Equal(t, []string{"cousin", "friend"}, result.Added)
	assert.Empty(t, result.Invited)
}

func TestAddMembers_Idempotent(t *testing.T) {
	store, _, _, svc, thing := fixture()
	caller := &users.User{ID: "owner"}
	req := AddMembersRequest{Users: []string{"friend@example.com"}}

	_, err := svc.AddMembers(context.Background(), thing, caller, req)
	require.NoError(t, err)
	result, err := svc.AddMembers(context.Background(), thing, caller, req)
	require.NoError(t, err)

	assert.Empty(t, result.Added)
	set, _ := store.Get(context.Background(), thing.Ref)
	assert.Equal(t, []string{"owner", "friend"}, set.UserIDs)
}

func TestInviteByEmail(t *testing.T) {
	_, _, inviter, svc, thing := fixture()
	caller := &users.User{ID: "owner"}

	status, found, err := svc.InviteByEmail(context.Background(), thing, caller, "stranger@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, StatusSentInvite, status)

	_, found, err = svc.InviteByEmail(context.Background(), thing, caller, "ghost@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"stranger@example.com"}, inviter.invited)
}

func TestRemoveMember(t *testing.T) {
	store, _, _, svc, thing := fixture()
	_, err := store.Add(context.Background(), thing.Ref, "friend")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(context.Background(), thing.Ref, "friend"))

	err = svc.RemoveMember(context.Background(), thing.Ref, "friend")
	assert.ErrorIs(t, err, apperror.ErrNotMember)
}

func TestGetForMember_HidesFromOutsiders(t *testing.T) {
	_, _, _, svc, thing := fixture()

	_, err := svc.GetForMember(context.Background(), thing.Ref, "stranger")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	set, err := svc.GetForMember(context.Background(), thing.Ref, "owner")
	require.NoError(t, err)
	assert.Equal(t, "Cabin", set.Name)
}
