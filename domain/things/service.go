// Package things manages bookable resources, their rules and pictures.
package things

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/internal/storage"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Store persists things and their rules.
type Store interface {
	// Create inserts thing, its rules and the owner's membership in one
	// transaction.
	Create(ctx context.Context, thing *Thing, rules []Rule) error
	Get(ctx context.Context, id string) (*Thing, error)
	// ListForUser returns things userID owns or is a member of, by name.
	ListForUser(ctx context.Context, userID string) ([]Thing, error)
	Update(ctx context.Context, thing *Thing) error
	// Delete removes the thing with its bookings, rules, memberships and
	// invite tokens.
	Delete(ctx context.Context, id string) error
	SetPicture(ctx context.Context, id string, key *string) error
	AddRule(ctx context.Context, rule *Rule) error
	ListRules(ctx context.Context, thingID string) ([]Rule, error)
	GetRule(ctx context.Context, thingID, ruleID string) (*Rule, error)
	// UpdateRule writes short text and description; position is kept.
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, thingID, ruleID string) error
}

// MemberSets resolves and extends member sets.
type MemberSets interface {
	GetForMember(ctx context.Context, ref memberships.Ref, callerID string) (*memberships.Set, error)
	AddMembers(ctx context.Context, set *memberships.Set, caller *users.User, req memberships.AddMembersRequest) (*memberships.AddMembersResult, error)
}

// PictureStore holds uploaded pictures.
type PictureStore interface {
	Enabled() bool
	Upload(ctx context.Context, key string, data io.Reader, size int64, opts storage.UploadOptions) (*storage.UploadResult, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// Service handles business logic for things
type Service struct {
	store          Store
	members        MemberSets
	pictures       PictureStore
	maxUploadBytes int64
	log            *slog.Logger
}

// NewService creates a new things service
func NewService(store Store, members MemberSets, pictures PictureStore, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:          store,
		members:        members,
		pictures:       pictures,
		maxUploadBytes: cfg.Upload.MaxBytes(),
		log:            log.With(logger.Scope("things.svc")),
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperror.NewBadRequest("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperror.NewBadRequest(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return apperror.NewBadRequest(fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}
	return nil
}

func validateRule(r RuleRequest) error {
	if strings.TrimSpace(r.Short) == "" {
		return apperror.NewBadRequest("rule short text is required")
	}
	if utf8.RuneCountInString(r.Short) > MaxNameLength {
		return apperror.NewBadRequest(fmt.Sprintf("rule short text must be at most %d characters", MaxNameLength))
	}
	return validateDescription(r.Description)
}

// Create creates a thing owned by caller and adds the requested members. A
// failure to add members is logged and leaves the thing in place with a nil
// result.
func (s *Service) Create(ctx context.Context, caller *users.User, req CreateThingRequest) (*Thing, *memberships.AddMembersResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateName(req.Name); err != nil {
		return nil, nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, nil, err
	}
	for _, r := range req.Rules {
		if err := validateRule(r); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	thing := &Thing{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rules := make([]Rule, len(req.Rules))
	for i, r := range req.Rules {
		rules[i] = Rule{
			ID:          uuid.NewString(),
			ThingID:     thing.ID,
			Short:       strings.TrimSpace(r.Short),
			Description: r.Description,
			Position:    i,
			CreatedAt:   now,
		}
	}

	if err := s.store.Create(ctx, thing, rules); err != nil {
		return nil, nil, err
	}
	s.log.Info("thing created", slog.String("thing_id", thing.ID), slog.String("owner_id", caller.ID))

	if len(req.Members) == 0 && len(req.Groups) == 0 {
		return thing, nil, nil
	}
	set := &memberships.Set{Ref: thing.Ref(), Name: thing.Name, OwnerID: thing.OwnerID, UserIDs: []string{thing.OwnerID}}
	added, err := s.members.AddMembers(ctx, set, caller, memberships.AddMembersRequest{Groups: req.Groups, Users: req.Members})
	if err != nil {
		// The thing is committed; members can still be added through the
		// members endpoint.
		s.log.Error("thing created but adding members failed",
			slog.String("thing_id", thing.ID),
			logger.Error(err),
		)
		return thing, nil, nil
	}
	return thing, added, nil
}

// List returns the things userID owns or is a member of
func (s *Service) List(ctx context.Context, userID string) ([]Thing, error) {
	return s.store.ListForUser(ctx, userID)
}

// GetForMember returns the thing and its member set, or NotFound when
// userID is not a member.
func (s *Service) GetForMember(ctx context.Context, id, userID string) (*Thing, *memberships.Set, error) {
	set, err := s.members.GetForMember(ctx, memberships.ThingRef(id), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.NewNotFound("Thing")
		}
		return nil, nil, err
	}
	thing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return thing, set, nil
}

// GetForOwner returns the thing, or Forbidden when userID is a member but
// not the owner.
func (s *Service) GetForOwner(ctx context.Context, id, userID string) (*Thing, error) {
	thing, _, err := s.GetForMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if thing.OwnerID != userID {
		return nil, apperror.NewForbidden("Only the owner can change this thing")
	}
	return thing, nil
}

// Update changes name and description of a thing owned by userID
func (s *Service) Update(ctx context.Context, id, userID string, req UpdateThingRequest) (*Thing, error) {
	thing, err := s.GetForOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		thing.Name = name
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		thing.Description = *req.Description
	}
	thing.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, thing); err != nil {
		return nil, err
	}
	return thing, nil
}

// Delete removes a thing owned by userID with everything attached to it
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	thing, err := s.GetForOwner(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("thing deleted", slog.String("thing_id", id))

	if thing.PictureKey != nil && s.pictures.Enabled() {
		if err := s.pictures.Delete(ctx, *thing.PictureKey); err != nil {
			s.log.Warn("failed to delete picture of deleted thing", slog.String("thing_id", id), logger.Error(err))
		}
	}
	return nil
}

// AddRule appends a rule to a thing owned by userID
func (s *Service) AddRule(ctx context.Context, id, userID string, req RuleRequest) (*Rule, error) {
	if _, err := s.GetForOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	if err := validateRule(req); err != nil {
		return nil, err
	}
	rule := &Rule{
		ID:          uuid.NewString(),
		ThingID:     id,
		Short:       strings.TrimSpace(req.Short),
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.AddRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns the rules of a thing userID is a member of
func (s *Service) ListRules(ctx context.Context, id, userID string) ([]Rule, error) {
	if _, _, err := s.GetForMember(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, id)
}

// UpdateRule edits a rule of a thing owned by userID
func (s *Service) UpdateRule(ctx context.Context, id, ruleID, userID string, req RuleUpdateRequest) (*Rule, error) {
	if _, err := s.GetForOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	rule, err := s.store.GetRule(ctx, id, ruleID)
	if err != nil {
		return nil, err
	}
	if req.Short != nil {
		rule.Short = strings.TrimSpace(*req.Short)
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if err := validateRule(RuleRequest{Short: rule.Short, Description: rule.Description}); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a rule of a thing owned by userID
func (s *Service) DeleteRule(ctx context.Context, id, ruleID, userID string) error {
	if _, err := s.GetForOwner(ctx, id, userID); err != nil {
		return err
	}
	return s.store.DeleteRule(ctx, id, ruleID)
}

// SetPicture stores data as the picture of a thing owned by userID. Only
// JPEG, PNG, GIF and WebP images within the upload limit are accepted.
func (s *Service) SetPicture(ctx context.Context, id, userID string, data []byte) (*Thing, error) {
	if !s.pictures.Enabled() {
		return nil, apperror.New(503, "storage_unavailable", "Storage service is not configured")
	}
	thing, err := s.GetForOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, apperror.ErrPayloadTooLarge
	}
	contentType, ext, ok := DetectPicture(data)
	if !ok {
		return nil, apperror.NewBadRequest("picture must be a JPEG, PNG, GIF or WebP image")
	}

	key := storage.PictureKey(id, ext)
	if _, err := s.pictures.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), storage.UploadOptions{ContentType: contentType}); err != nil {
		return nil, apperror.NewInternal("failed to store picture", err)
	}
	if err := s.store.SetPicture(ctx, id, &key); err != nil {
		return nil, err
	}

	if old := thing.PictureKey; old != nil && *old != key {
		if err := s.pictures.Delete(ctx, *old); err != nil {
			s.log.Warn("failed to delete replaced picture", slog.String("key", *old), logger.Error(err))
		}
	}
	thing.PictureKey = &key
	return thing, nil
}

// PictureURL returns a temporary URL for the thing's picture, or "" when
// there is none or it cannot be signed.
func (s *Service) PictureURL(ctx context.Context, thing *Thing) string {
	if thing.PictureKey == nil || !s.pictures.Enabled() {
		return ""
	}
	url, err := s.pictures.SignedURL(ctx, *thing.PictureKey, 0)
	if err != nil {
		return ""
	}
	return url
}
