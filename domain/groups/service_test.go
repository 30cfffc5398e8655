package groups

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
)

type memStore struct {
	groups map[string]*Group
	sets   map[string]*memberships.Set
}

func (s *memStore) Create(ctx context.Context, g *Group) error {
	cp := *g
	s.groups[g.ID] = &cp
	s.sets[g.ID] = &memberships.Set{Ref: g.Ref(), Name: g.Name, OwnerID: g.OwnerID, UserIDs: []string{g.OwnerID}}
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, apperror.NewNotFound("Group")
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) ListForUser(ctx context.Context, userID string) ([]Group, error) {
	var out []Group
	for id, g := range s.groups {
		if s.sets[id].Contains(userID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *memStore) Update(ctx context.Context, g *Group) error {
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	delete(s.groups, id)
	delete(s.sets, id)
	return nil
}

type fakeMembers struct{ store *memStore }

func (m *fakeMembers) GetForMember(ctx context.Context, ref memberships.Ref, callerID string) (*memberships.Set, error) {
	set, ok := m.store.sets[ref.ID]
	if !ok || !set.Contains(callerID) {
		return nil, apperror.NewNotFound(string(ref.Type))
	}
	return set, nil
}

func (m *fakeMembers) AddMembers(ctx context.Context, set *memberships.Set, caller *users.User, req memberships.AddMembersRequest) (*memberships.AddMembersResult, error) {
	return &memberships.AddMembersResult{Added: []string{}, Invited: map[string]memberships.Status{"x@example.com": memberships.StatusSentInvite}}, nil
}

type fakeLookup map[string]users.User

func (f fakeLookup) GetByIDs(ctx context.Context, ids []string) (map[string]users.User, error) {
	out := map[string]users.User{}
	for _, id := range ids {
		if u, ok := f[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

var (
	owner  = &users.User{ID: "owner", Email: "owner@example.com"}
	member = &users.User{ID: "member", Email: "member@example.com"}
)

func newTestService() (*Service, *memStore) {
	store := &memStore{groups: map[string]*Group{}, sets: map[string]*memberships.Set{}}
	lookup := fakeLookup{owner.ID: *owner, member.ID: *member}
	return NewService(store, &fakeMembers{store: store}, lookup, slog.Default()), store
}

func TestCreate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, _, err := svc.Create(ctx, owner, CreateGroupRequest{Name: " "})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
	_, _, err = svc.Create(ctx, owner, CreateGroupRequest{Name: strings.Repeat("g", MaxNameLength+1)})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)

	group, added, err := svc.Create(ctx, owner, CreateGroupRequest{Name: "Hikers", Members: []string{"x@example.com"}})
	require.NoError(t, err)
	assert.True(t, store.sets[group.ID].Contains(owner.ID))
	assert.Equal(t, memberships.StatusSentInvite, added.Invited["x@example.com"])
}

func TestGetForMember(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	group, _, err := svc.Create(ctx, owner, CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)
	store.sets[group.ID].UserIDs = append(store.sets[group.ID].UserIDs, member.ID)

	got, members, err := svc.GetForMember(ctx, group.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hikers", got.Name)
	require.Len(t, members, 2, "owner listed once")
	assert.Equal(t, owner.ID, members[0].ID)

	_, _, err = svc.GetForMember(ctx, group.ID, "stranger")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestOwnerOnlyChanges(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	group, _, err := svc.Create(ctx, owner, CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)
	store.sets[group.ID].UserIDs = append(store.sets[group.ID].UserIDs, member.ID)

	_, err = svc.Update(ctx, group.ID, member.ID, UpdateGroupRequest{Name: "Climbers"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := svc.Update(ctx, group.ID, owner.ID, UpdateGroupRequest{Name: "Climbers"})
	require.NoError(t, err)
	assert.Equal(t, "Climbers", updated.Name)

	assert.ErrorIs(t, svc.Delete(ctx, group.ID, member.ID), apperror.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, group.ID, owner.ID))

	list, err := svc.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
