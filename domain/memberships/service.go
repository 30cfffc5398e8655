package memberships

import (
	"context"
	"log/slog"

	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Store is the membership persistence used by the coordinator.
type Store interface {
	Get(ctx context.Context, ref Ref) (*Set, error)
	Add(ctx context.Context, ref Ref, userIDs ...string) ([]string, error)
	Remove(ctx context.Context, ref Ref, userID string) (bool, error)
}

// Directory resolves users the caller may add without an invitation.
type Directory interface {
	// UsersInGroups returns members of groupIDs, limited to groups callerID is in.
	UsersInGroups(ctx context.Context, callerID string, groupIDs []string) ([]users.User, error)
	// KnownUsers returns users sharing a group with callerID among emails.
	KnownUsers(ctx context.Context, callerID string, emails []string) ([]users.User, error)
	// FindByEmails returns the registered users among emails.
	FindByEmails(ctx context.Context, emails []string) ([]users.User, error)
}

// Inviter issues invitation tokens.
type Inviter interface {
	Invite(ctx context.Context, set *Set, invited, inviter *users.User) (Status, error)
}

// Service coordinates direct additions, invitations and removals.
type Service struct {
	store   Store
	dir     Directory
	inviter Inviter
	log     *slog.Logger
}

// NewService creates a new membership coordinator
func NewService(store Store, dir Directory, inviter Inviter, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		dir:     dir,
		inviter: inviter,
		log:     log.With(logger.Scope("memberships.svc")),
	}
}

// Get returns the member set of ref.
func (s *Service) Get(ctx context.Context, ref Ref) (*Set, error) {
	return s.store.Get(ctx, ref)
}

// GetForMember returns the member set of ref, or NotFound when callerID is
// not a member, so that non-members cannot learn whether it exists.
func (s *Service) GetForMember(ctx context.Context, ref Ref, callerID string) (*Set, error) {
	set, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !IsMember(callerID, set) {
		return nil, apperror.NewNotFound(string(ref.Type))
	}
	return set, nil
}

// AddMembers adds every user from req.Groups and every email that belongs
// to a user the caller already knows. Other emails of registered users are
// invited; unregistered emails are dropped.
func (s *Service) AddMembers(ctx context.Context, set *Set, caller *users.User, req AddMembersRequest) (*AddMembersResult, error) {
	result := &AddMembersResult{Added: []string{}, Invited: map[string]Status{}}

	var direct []string
	fromGroups, err := s.dir.UsersInGroups(ctx, caller.ID, req.Groups)
	if err != nil {
		return nil, err
	}
	for _, u := range fromGroups {
		direct = append(direct, u.ID)
	}

	emails := users.NormalizeEmails(req.Users)
	known, err := s.dir.KnownUsers(ctx, caller.ID, emails)
	if err != nil {
		return nil, err
	}
	knownEmails := make(map[string]struct{}, len(known))
	for _, u := range known {
		direct = append(direct, u.ID)
		knownEmails[u.Email] = struct{}{}
	}

	var pending []string
	for _, e := range emails {
		if _, ok := knownEmails[e]; !ok {
			pending = append(pending, e)
		}
	}

	added, err := s.store.Add(ctx, set.Ref, direct...)
	if err != nil {
		return nil, err
	}
	if added != nil {
		result.Added = added
	}

	if len(pending) == 0 {
		return result, nil
	}
	registered, err := s.dir.FindByEmails(ctx, pending)
	if err != nil {
		return nil, err
	}
	for i := range registered {
		status, err := s.inviter.Invite(ctx, set, &registered[i], caller)
		if err != nil {
			return nil, err
		}
		result.Invited[registered[i].Email] = status
	}

	s.log.Info("members added",
		slog.String("target", set.Ref.Key()),
		slog.Int("added", len(result.Added)),
		slog.Int("invited", len(result.Invited)),
	)
	return result, nil
}

// InviteByEmail invites the user registered with email. found is false when
// no such user exists; callers must not reveal that to the client.
func (s *Service) InviteByEmail(ctx context.Context, set *Set, caller *users.User, email string) (status Status, found bool, err error) {
	registered, err := s.dir.FindByEmails(ctx, []string{email})
	if err != nil {
		return "", false, err
	}
	if len(registered) == 0 {
		return "", false, nil
	}
	status, err = s.inviter.Invite(ctx, set, &registered[0], caller)
	if err != nil {
		return "", true, err
	}
	return status, true, nil
}

// RemoveMember removes userID from ref. It fails with ErrNotMember when
// userID holds no membership.
func (s *Service) RemoveMember(ctx context.Context, ref Ref, userID string) error {
	removed, err := s.store.Remove(ctx, ref, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperror.ErrNotMember
	}
	s.log.Info("member removed", slog.String("target", ref.Key()), slog.String("user_id", userID))
	return nil
}
