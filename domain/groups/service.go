// Package groups manages groups of users.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Store persists groups.
type Store interface {
	// Create inserts the group and the owner's membership in one transaction.
	Create(ctx context.Context, group *Group) error
	Get(ctx context.Context, id string) (*Group, error)
	ListForUser(ctx context.Context, userID string) ([]Group, error)
	Update(ctx context.Context, group *Group) error
	// Delete removes the group with its memberships and invite tokens.
	Delete(ctx context.Context, id string) error
}

// MemberSets resolves and extends member sets.
type MemberSets interface {
	GetForMember(ctx context.Context, ref memberships.Ref, callerID string) (*memberships.Set, error)
	AddMembers(ctx context.Context, set *memberships.Set, caller *users.User, req memberships.AddMembersRequest) (*memberships.AddMembersResult, error)
}

// UserLookup resolves member IDs to users.
type UserLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]users.User, error)
}

// Service handles business logic for groups
type Service struct {
	store   Store
	members MemberSets
	users   UserLookup
	log     *slog.Logger
}

// NewService creates a new groups service
func NewService(store Store, members MemberSets, lookup UserLookup, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		members: members,
		users:   lookup,
		log:     log.With(logger.Scope("groups.svc")),
	}
}

func validateName(name string) error {
	if name == "" {
		return apperror.NewBadRequest("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperror.NewBadRequest(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return nil
}

// Create creates a group owned by caller. Members holds emails that are
// added or invited as in an add-members call.
func (s *Service) Create(ctx context.Context, caller *users.User, req CreateGroupRequest) (*Group, *memberships.AddMembersResult, error) {
	name := strings.TrimSpace(req.Name)
	if err := validateName(name); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	group := &Group{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, group); err != nil {
		return nil, nil, err
	}
	s.log.Info("group created", slog.String("group_id", group.ID), slog.String("owner_id", caller.ID))

	if len(req.Members) == 0 {
		return group, nil, nil
	}
	set := &memberships.Set{Ref: group.Ref(), Name: group.Name, OwnerID: group.OwnerID, UserIDs: []string{group.OwnerID}}
	added, err := s.members.AddMembers(ctx, set, caller, memberships.AddMembersRequest{Users: req.Members})
	if err != nil {
		return nil, nil, err
	}
	return group, added, nil
}

// List returns the groups userID belongs to
func (s *Service) List(ctx context.Context, userID string) ([]Group, error) {
	return s.store.ListForUser(ctx, userID)
}

// GetForMember returns the group and its members, or NotFound when userID
// is not a member.
func (s *Service) GetForMember(ctx context.Context, id, userID string) (*Group, []users.User, error) {
	set, err := s.members.GetForMember(ctx, memberships.GroupRef(id), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.NewNotFound("Group")
		}
		return nil, nil, err
	}
	group, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ids := append([]string{set.OwnerID}, set.UserIDs...)
	found, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	members := make([]users.User, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := found[id]; ok {
			members = append(members, u)
		}
	}
	return group, members, nil
}

func (s *Service) getForOwner(ctx context.Context, id, userID string) (*Group, error) {
	group, _, err := s.GetForMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != userID {
		return nil, apperror.NewForbidden("Only the owner can change this group")
	}
	return group, nil
}

// Update renames a group owned by userID
func (s *Service) Update(ctx context.Context, id, userID string, req UpdateGroupRequest) (*Group, error) {
	group, err := s.getForOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	group.Name = name
	group.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes a group owned by userID
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.getForOwner(ctx, id, userID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("group deleted", slog.String("group_id", id))
	return nil
}
