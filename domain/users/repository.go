package users

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Repository reads and maintains the local copy of user identities.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new user repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("users.repo")),
	}
}

// EnsureUser inserts the user or refreshes their email and display name.
func (r *Repository) EnsureUser(ctx context.Context, id, email, displayName string) error {
	user := &User{ID: id, Email: NormalizeEmail(email), DisplayName: displayName}
	_, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("display_name = CASE WHEN EXCLUDED.display_name = '' THEN u.display_name ELSE EXCLUDED.display_name END").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert user", logger.Error(err), slog.String("id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns a user by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.db.NewSelect().Model(&user).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("User")
		}
		r.log.Error("failed to get user", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &user, nil
}

// GetByIDs returns the users with the given IDs keyed by ID. Unknown IDs are
// absent from the map.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []User
	err := r.db.NewSelect().Model(&users).Where("u.id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		r.log.Error("failed to get users", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// FindByEmail returns the user registered with email, or nil.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	found, err := r.FindByEmails(ctx, []string{email})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// FindByEmails returns the registered users among emails.
func (r *Repository) FindByEmails(ctx context.Context, emails []string) ([]User, error) {
	emails = NormalizeEmails(emails)
	if len(emails) == 0 {
		return nil, nil
	}
	var users []User
	err := r.db.NewSelect().
		Model(&users).
		Where("u.email IN (?)", bun.In(emails)).
		Order("u.email ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to find users by email", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}

// KnownUsers returns users sharing at least one group with userID. When
// emails is non-empty the result is restricted to those addresses.
func (r *Repository) KnownUsers(ctx context.Context, userID string, emails []string) ([]User, error) {
	q := r.db.NewSelect().
		Model((*User)(nil)).
		ColumnExpr("DISTINCT u.*").
		Join("JOIN tb.memberships AS theirs ON theirs.user_id = u.id AND theirs.target_type = 'group'").
		Join("JOIN tb.memberships AS mine ON mine.target_id = theirs.target_id AND mine.target_type = 'group'").
		Where("mine.user_id = ?", userID).
		Where("u.id <> ?", userID)
	if len(emails) > 0 {
		q = q.Where("u.email IN (?)", bun.In(NormalizeEmails(emails)))
	}

	var users []User
	if err := q.OrderExpr("u.email ASC").Scan(ctx, &users); err != nil {
		r.log.Error("failed to list known users", logger.Error(err), slog.String("user_id", userID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}

// UsersInGroups returns the members of the given groups, restricted to groups
// userID itself belongs to.
func (r *Repository) UsersInGroups(ctx context.Context, userID string, groupIDs []string) ([]User, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var users []User
	err := r.db.NewSelect().
		Model((*User)(nil)).
		ColumnExpr("DISTINCT u.*").
		Join("JOIN tb.memberships AS m ON m.user_id = u.id AND m.target_type = 'group'").
		Where("m.target_id IN (?)", bun.In(groupIDs)).
		Where("EXISTS (SELECT 1 FROM tb.memberships AS mine WHERE mine.target_type = 'group' AND mine.target_id = m.target_id AND mine.user_id = ?)", userID).
		OrderExpr("u.email ASC").
		Scan(ctx, &users)
	if err != nil {
		r.log.Error("failed to list group users", logger.Error(err), slog.String("user_id", userID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return users, nil
}
