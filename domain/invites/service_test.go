package invites

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/notify"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
)

// memStore runs every transaction under one mutex and discards the
// transaction's writes when fn fails.
type memStore struct {
	mu      sync.Mutex
	tokens  map[string]InviteToken
	members map[string]map[string]bool
	failAdd bool
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]InviteToken{}, members: map[string]map[string]bool{}}
}

type memTx struct {
	tokens  map[string]InviteToken
	members map[string]map[string]bool
	failAdd bool
}

func (s *memStore) run(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{tokens: map[string]InviteToken{}, members: map[string]map[string]bool{}, failAdd: s.failAdd}
	for k, v := range s.tokens {
		tx.tokens[k] = v
	}
	for k, set := range s.members {
		tx.members[k] = map[string]bool{}
		for u := range set {
			tx.members[k][u] = true
		}
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.tokens, s.members = tx.tokens, tx.members
	return nil
}

func (s *memStore) WithInviteLock(ctx context.Context, ref memberships.Ref, userID string, fn func(ctx context.Context, tx Tx) error) error {
	return s.run(ctx, fn)
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.run(ctx, fn)
}

func (s *memStore) FindByHash(ctx context.Context, kind memberships.TargetType, userID, hash string) (*InviteToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.TokenHash == hash && tok.UserID == userID && tok.TargetType == kind {
			cp := tok
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) List(ctx context.Context, ref memberships.Ref) ([]InviteToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InviteToken
	for _, tok := range s.tokens {
		if tok.Ref() == ref {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (s *memStore) isMember(ref memberships.Ref, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[ref.Key()][userID]
}

func (s *memStore) tokensFor(ref memberships.Ref, userID string) []InviteToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InviteToken
	for _, tok := range s.tokens {
		if tok.Ref() == ref && tok.UserID == userID {
			out = append(out, tok)
		}
	}
	return out
}

func (tx *memTx) FindActive(ctx context.Context, ref memberships.Ref, userID string, now time.Time) (*InviteToken, error) {
	for _, tok := range tx.tokens {
		if tok.Ref() == ref && tok.UserID == userID && tok.Active(now) {
			cp := tok
			return &cp, nil
		}
	}
	return nil, nil
}

func (tx *memTx) Insert(ctx context.Context, tok *InviteToken) error {
	tx.tokens[tok.ID] = *tok
	return nil
}

func (tx *memTx) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	tok, ok := tx.tokens[id]
	if !ok || !tok.Active(now) {
		return false, nil
	}
	tok.UsedAt = &now
	tx.tokens[id] = tok
	return true, nil
}

func (tx *memTx) AddMember(ctx context.Context, ref memberships.Ref, userID string) error {
	if tx.failAdd {
		return apperror.ErrDatabase.WithInternal(errors.New("insert failed"))
	}
	if tx.members[ref.Key()] == nil {
		tx.members[ref.Key()] = map[string]bool{}
	}
	tx.members[ref.Key()][userID] = true
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memStore
	sender *recordingSender
	svc    *Service
	clock  *time.Time
	group  *memberships.Set
	owner  *users.User
	alice  *users.User
}

func newFixture() *fixture {
	cfg := &config.Config{
		ClientBaseURL: "https://app.example/",
		Invite:        config.InviteConfig{TokenTTL: 72 * time.Hour, TokenByteLength: 32},
	}
	store := newMemStore()
	sender := &recordingSender{}
	svc := NewService(store, notify.NewDispatcher(sender, slog.Default()), cfg, slog.Default())
	clock := t0
	svc.now = func() time.Time { return clock }

	return &fixture{
		store:  store,
		sender: sender,
		svc:    svc,
		clock:  &clock,
		group:  &memberships.Set{Ref: memberships.GroupRef("g1"), Name: "Hikers", OwnerID: "owner", UserIDs: []string{"owner"}},
		owner:  &users.User{ID: "owner", Email: "owner@example.com", DisplayName: "Olga"},
		alice:  &users.User{ID: "alice", Email: "alice@example.com"},
	}
}

// rawTokenFromMail extracts the raw token from the accept link that was mailed.
func (f *fixture) rawTokenFromMail(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sender.msgs)
	url := f.sender.msgs[len(f.sender.msgs)-1].Data["acceptUrl"].(string)
	prefix := "https://app.example/invites/groups/accept/"
	require.Contains(t, url, prefix)
	return url[len(prefix):]
}

func TestInvite_SendsOnceThenAlreadyInvited(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	status, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusSentInvite, status)

	status, err = f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusAlreadyInvited, status)

	assert.Len(t, f.store.tokensFor(f.group.Ref, "alice"), 1)
	assert.Equal(t, 1, f.sender.count(), "no mail for the repeated invite")

	msg := f.sender.msgs[0]
	assert.Equal(t, notify.TemplateInviteUserToGroup, msg.Template)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Olga", msg.Data["inviterName"])
}

func TestInvite_MemberIsNotInvited(t *testing.T) {
	f := newFixture()

	status, err := f.svc.Invite(context.Background(), f.group, f.owner, f.owner)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusMember, status)
	assert.Empty(t, f.store.tokensFor(f.group.Ref, "owner"))
	assert.Zero(t, f.sender.count())
}

func TestInvite_TokenShapeAndStorage(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Invite(context.Background(), f.group, f.alice, f.owner)
	require.NoError(t, err)

	raw := f.rawTokenFromMail(t)
	assert.Len(t, raw, 43, "32 bytes in unpadded base64url")

	tokens := f.store.tokensFor(f.group.Ref, "alice")
	require.Len(t, tokens, 1)
	tok := tokens[0]
	assert.Equal(t, HashToken(raw), tok.TokenHash)
	assert.NotEqual(t, raw, tok.TokenHash)
	assert.Equal(t, t0.Add(72*time.Hour), tok.ExpiresAt)
	require.NotNil(t, tok.InvitedBy)
	assert.Equal(t, "owner", *tok.InvitedBy)
}

func TestInvite_ExpiredTokenAllowsNewInvite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)

	*f.clock = t0.Add(73 * time.Hour)
	status, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	assert.Equal(t, memberships.StatusSentInvite, status)
	assert.Len(t, f.store.tokensFor(f.group.Ref, "alice"), 2)
}

func TestInvite_ConcurrentCreatesOneToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	statuses := make([]memberships.Status, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
			assert.NoError(t, err)
			statuses[i] = s
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, s := range statuses {
		if s == memberships.StatusSentInvite {
			sent++
		}
	}
	assert.Equal(t, 1, sent)
	assert.Len(t, f.store.tokensFor(f.group.Ref, "alice"), 1)
}

func TestAcceptInvite_ScenarioConsumeThenReuse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	*f.clock = t0.Add(time.Hour)
	result, err := f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConsumed, result.Status)
	assert.Equal(t, "g1", result.TargetID)
	assert.True(t, f.store.isMember(f.group.Ref, "alice"))

	tok := f.store.tokensFor(f.group.Ref, "alice")[0]
	require.NotNil(t, tok.UsedAt)
	assert.Equal(t, t0.Add(time.Hour), *tok.UsedAt)

	result, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUsed, result.Status)
}

func TestAcceptInvite_RecordsOutcomeOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	_, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.NoError(t, err)
	_, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for i, want := range []Outcome{OutcomeConsumed, OutcomeUsed} {
		assert.Equal(t, "invites.accept", spans[i].Name())
		assert.Contains(t, spans[i].Attributes(), attribute.String("thingbooker.invite.outcome", string(want)))
	}
}

func TestAcceptInvite_Expired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	*f.clock = t0.Add(72 * time.Hour)
	tok, _ := f.store.FindByHash(ctx, memberships.TargetGroup, "alice", HashToken(raw))
	require.NotNil(t, tok)
	assert.False(t, tok.Expired(*f.clock), "expiry instant itself is still valid")

	*f.clock = t0.Add(72*time.Hour + time.Second)
	result, err := f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, result.Status)
	assert.False(t, f.store.isMember(f.group.Ref, "alice"))
	assert.Nil(t, f.store.tokensFor(f.group.Ref, "alice")[0].UsedAt)
}

func TestAcceptInvite_ExpiredAndUsedReportsExpired(t *testing.T) {
	f := newFixture()
	used := t0
	tok := &InviteToken{ID: "x", ExpiresAt: t0.Add(time.Hour), UsedAt: &used}

	*f.clock = t0.Add(2 * time.Hour)
	outcome, err := f.svc.AcceptInvite(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
}

func TestAcceptInvite_UnknownOrForeignToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	_, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "mallory", raw)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.AcceptByToken(ctx, memberships.TargetThing, "alice", raw)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", "garbage")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAcceptInvite_FailedMembershipInsertLeavesTokenUnused(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	f.store.failAdd = true
	_, err = f.svc.AcceptByToken(ctx, memberships.TargetGroup, "alice", raw)
	require.Error(t, err)

	tok := f.store.tokensFor(f.group.Ref, "alice")[0]
	assert.Nil(t, tok.UsedAt, "consumption rolls back with the membership insert")
	assert.False(t, f.store.isMember(f.group.Ref, "alice"))
}

func TestAcceptInvite_ConcurrentConsumesOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	const n = 10
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := f.store.FindByHash(ctx, memberships.TargetGroup, "alice", HashToken(raw))
			if !assert.NoError(t, err) || !assert.NotNil(t, tok) {
				return
			}
			outcome, err := f.svc.AcceptInvite(ctx, tok)
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	consumed := 0
	for _, o := range outcomes {
		if o == OutcomeConsumed {
			consumed++
		} else {
			assert.Equal(t, OutcomeUsed, o)
		}
	}
	assert.Equal(t, 1, consumed)
}

func TestList_ExposesHashOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, f.group, f.alice, f.owner)
	require.NoError(t, err)
	raw := f.rawTokenFromMail(t)

	list, err := f.svc.List(ctx, f.group.Ref)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, HashToken(raw), list[0].TokenHash)
	assert.Equal(t, "alice", list[0].UserID)
}

func TestThingInviteUsesThingTemplate(t *testing.T) {
	f := newFixture()
	thing := &memberships.Set{Ref: memberships.ThingRef("t1"), Name: "Canoe", OwnerID: "owner"}

	_, err := f.svc.Invite(context.Background(), thing, f.alice, f.owner)
	require.NoError(t, err)

	msg := f.sender.msgs[0]
	assert.Equal(t, notify.TemplateInviteUserToThing, msg.Template)
	assert.Contains(t, msg.Data["acceptUrl"], "https://app.example/invites/things/accept/")
	assert.Equal(t, "You have been invited to use Canoe", msg.Subject)
}
