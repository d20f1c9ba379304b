package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports/mocks"
	"event-dispatcher/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type registryTestDeps struct {
	reg      *Registry
	signer   *HMACSigner
	limiter  *TargetRateLimiter
	stats    *StatsTracker
	notifier *Notifier
	notes    <-chan domain.Notification
	clock    *fakeClock
}

func setupRegistry(t *testing.T, repo *mocks.MockTargetRepository) *registryTestDeps {
	t.Helper()
	d := &registryTestDeps{
		signer:   NewHMACSigner(nil, nil, zerolog.Nop()),
		stats:    NewStatsTracker(),
		notifier: NewNotifier(),
		clock:    newFakeClock(),
	}
	d.limiter = newTestLimiter(d.clock)
	notes, cancel := d.notifier.Subscribe(64)
	t.Cleanup(cancel)
	d.notes = notes

	d.reg = NewRegistry(nil, d.signer, d.limiter, d.stats, d.notifier, zerolog.Nop())
	if repo != nil {
		d.reg.repo = repo
	}
	d.reg.now = d.clock.Now
	return d
}

func newTarget(event string) domain.Target {
	return domain.Target{
		Name:  "orders",
		URL:   "https://hooks.example.com/orders",
		Event: event,
	}
}

func nextNote(t *testing.T, ch <-chan domain.Notification) domain.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
		return domain.Notification{}
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("order.created"))
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Empty(t, reg.Secret)

	got, err := d.reg.Get(reg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TargetStatusActive, got.Status)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, d.clock.Now(), got.CreatedAt)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	n := nextNote(t, d.notes)
	assert.Equal(t, domain.NotifyRegistered, n.Type)
	assert.Equal(t, reg.ID, n.TargetID)
}

func TestRegistry_RegisterWithSigningReturnsSecret(t *testing.T) {
	d := setupRegistry(t, nil)

	target := newTarget("order.created")
	target.Signing = true
	reg, err := d.reg.Register(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, reg.Secret, 64)

	header, err := d.signer.Sign(reg.ID, []byte("x"), "v1")
	require.NoError(t, err)
	assert.NoError(t, VerifySignature(reg.Secret, header, []byte("x"), 0, time.Now()))

	got, _ := d.reg.Get(reg.ID)
	assert.Equal(t, "v1", got.SigningVersion)
}

func TestRegistry_RegisterRejectsMalformedURL(t *testing.T) {
	d := setupRegistry(t, nil)

	target := newTarget("order.created")
	target.URL = "not a url"
	_, err := d.reg.Register(context.Background(), target)

	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, d.reg.List(domain.TargetFilter{}))
	assert.Empty(t, d.notes)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)
	nextNote(t, d.notes)

	require.NoError(t, d.reg.Unregister(ctx, reg.ID))
	require.NoError(t, d.reg.Unregister(ctx, reg.ID))
	require.NoError(t, d.reg.Unregister(ctx, "never-existed"))

	_, err = d.reg.Get(reg.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, d.reg.ResolveForEvent("a"))

	n := nextNote(t, d.notes)
	assert.Equal(t, domain.NotifyUnregistered, n.Type)
	require.NotNil(t, n.Target)
	assert.Equal(t, domain.TargetStatusDisabled, n.Target.Status)
	assert.Empty(t, d.notes, "second unregister must not notify")
}

func TestRegistry_UnregisterReleasesPerTargetState(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	target := newTarget("a")
	target.Signing = true
	target.RateLimit = &domain.RateLimitPolicy{Max: 1, Window: time.Hour}
	reg, err := d.reg.Register(ctx, target)
	require.NoError(t, err)

	ok, _ := d.limiter.Admit(ctx, reg.ID, target.RateLimit)
	require.True(t, ok)
	d.stats.Record(reg.ID, true, time.Millisecond)

	require.NoError(t, d.reg.Unregister(ctx, reg.ID))

	_, err = d.signer.Sign(reg.ID, []byte("x"), "v1")
	assert.True(t, apperror.IsNotFound(err))
	ok, _ = d.limiter.Admit(ctx, reg.ID, target.RateLimit)
	assert.True(t, ok, "window must be discarded")
	assert.Zero(t, d.stats.Get(reg.ID).TotalCalls)
}

func TestRegistry_Update(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)
	nextNote(t, d.notes)
	d.clock.Advance(time.Minute)

	event := "b"
	updated, err := d.reg.Update(ctx, reg.ID, domain.TargetPatch{Event: &event})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Event)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	assert.Empty(t, d.reg.ResolveForEvent("a"))
	assert.Len(t, d.reg.ResolveForEvent("b"), 1)
	assert.Equal(t, domain.NotifyUpdated, nextNote(t, d.notes).Type)
}

func TestRegistry_UpdateValidationAppliesNothing(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	name := "renamed"
	badURL := "ftp://nope"
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Name: &name, URL: &badURL})
	assert.True(t, apperror.IsValidation(err))

	got, _ := d.reg.Get(reg.ID)
	assert.Equal(t, "orders", got.Name)
}

func TestRegistry_UpdateUnknown(t *testing.T) {
	d := setupRegistry(t, nil)

	_, err := d.reg.Update(context.Background(), "missing", domain.TargetPatch{})
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegistry_UpdateSuspendAndResume(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	suspended := domain.TargetStatusSuspended
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Status: &suspended})
	require.NoError(t, err)
	assert.Empty(t, d.reg.ResolveForEvent("a"))
	assert.Len(t, d.reg.List(domain.TargetFilter{Status: domain.TargetStatusSuspended}), 1)

	active := domain.TargetStatusActive
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Status: &active})
	require.NoError(t, err)
	assert.Len(t, d.reg.ResolveForEvent("a"), 1)

	disabled := domain.TargetStatusDisabled
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Status: &disabled})
	assert.True(t, apperror.IsValidation(err))
}

func TestRegistry_UpdateTogglesSigning(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	on := true
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Signing: &on})
	require.NoError(t, err)
	_, err = d.signer.Sign(reg.ID, []byte("x"), "v1")
	require.NoError(t, err)

	off := false
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Signing: &off})
	require.NoError(t, err)
	_, err = d.signer.Sign(reg.ID, []byte("x"), "v1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegistry_RotateSecret(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	signed := newTarget("a")
	signed.Signing = true
	reg, err := d.reg.Register(ctx, signed)
	require.NoError(t, err)

	rotated, err := d.reg.RotateSecret(ctx, reg.ID)
	require.NoError(t, err)
	assert.NotEqual(t, reg.Secret, rotated)

	plain, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)
	_, err = d.reg.RotateSecret(ctx, plain.ID)
	assert.True(t, apperror.IsValidation(err))

	_, err = d.reg.RotateSecret(ctx, "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegistry_ResolveForEventOrdering(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	first, err := d.reg.Register(ctx, newTarget("user.created"))
	require.NoError(t, err)
	d.clock.Advance(time.Second)
	wild, err := d.reg.Register(ctx, newTarget(domain.WildcardEvent))
	require.NoError(t, err)
	d.clock.Advance(time.Second)
	_, err = d.reg.Register(ctx, newTarget("user.deleted"))
	require.NoError(t, err)
	d.clock.Advance(time.Second)
	last, err := d.reg.Register(ctx, newTarget("user.created"))
	require.NoError(t, err)

	got := d.reg.ResolveForEvent("user.created")
	require.Len(t, got, 3)
	assert.Equal(t, []string{first.ID, wild.ID, last.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	d := setupRegistry(t, nil)
	ctx := context.Background()

	target := newTarget("a")
	target.Headers = map[string]string{"X-Team": "core"}
	reg, err := d.reg.Register(ctx, target)
	require.NoError(t, err)

	target.Headers["X-Team"] = "mutated-input"
	got, _ := d.reg.Get(reg.ID)
	got.Headers["X-Team"] = "mutated-output"

	again, _ := d.reg.Get(reg.ID)
	assert.Equal(t, "core", again.Headers["X-Team"])
}

func TestRegistry_PersistsThroughRepository(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	d := setupRegistry(t, repo)
	ctx := context.Background()

	repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tgt *domain.Target) error {
		assert.Equal(t, domain.TargetStatusActive, tgt.Status)
		return nil
	})
	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	repo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tgt *domain.Target) error {
		assert.Equal(t, reg.ID, tgt.ID)
		assert.Equal(t, domain.TargetStatusDisabled, tgt.Status)
		return nil
	})
	require.NoError(t, d.reg.Unregister(ctx, reg.ID))
}

func TestRegistry_RegisterRepositoryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	d := setupRegistry(t, repo)
	ctx := context.Background()

	repo.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("connection refused"))

	target := newTarget("a")
	target.Signing = true
	_, err := d.reg.Register(ctx, target)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "SYS_001"))
	assert.Empty(t, d.reg.List(domain.TargetFilter{}))
}

func TestRegistry_UpdateRepositoryFailureKeepsSigner(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	d := setupRegistry(t, repo)
	ctx := context.Background()

	repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	signed := newTarget("a")
	signed.Signing = true
	reg, err := d.reg.Register(ctx, signed)
	require.NoError(t, err)

	repo.EXPECT().Update(ctx, gomock.Any()).Return(errors.New("db down"))
	off := false
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Signing: &off})
	assert.True(t, apperror.HasCode(err, "SYS_001"))

	got, _ := d.reg.Get(reg.ID)
	assert.True(t, got.Signing)
	_, err = d.signer.Sign(reg.ID, []byte("x"), "v1")
	assert.NoError(t, err, "secret must survive a rejected update")
}

func TestRegistry_UpdateRepositoryFailureProvisionsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	d := setupRegistry(t, repo)
	ctx := context.Background()

	repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	repo.EXPECT().Update(ctx, gomock.Any()).Return(errors.New("db down"))
	on := true
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Signing: &on})
	require.Error(t, err)

	got, _ := d.reg.Get(reg.ID)
	assert.False(t, got.Signing)
	_, err = d.signer.Sign(reg.ID, []byte("x"), "v1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegistry_UpdateRevertsRowWhenSignerFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	secrets := mocks.NewMockSecretRepository(ctrl)
	enc := mocks.NewMockEncryptionService(ctrl)
	d := setupRegistry(t, repo)
	d.reg.signer = NewHMACSigner(secrets, enc, zerolog.Nop())
	ctx := context.Background()

	repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	reg, err := d.reg.Register(ctx, newTarget("a"))
	require.NoError(t, err)

	enc.EXPECT().Encrypt(gomock.Any()).Return("sealed", nil)
	secrets.EXPECT().Save(ctx, reg.ID, "sealed").Return(errors.New("db down"))
	gomock.InOrder(
		repo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tgt *domain.Target) error {
			assert.True(t, tgt.Signing)
			return nil
		}),
		repo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tgt *domain.Target) error {
			assert.False(t, tgt.Signing)
			return nil
		}),
	)

	on := true
	_, err = d.reg.Update(ctx, reg.ID, domain.TargetPatch{Signing: &on})
	require.Error(t, err)

	got, _ := d.reg.Get(reg.ID)
	assert.False(t, got.Signing)
}

func TestRegistry_RegisterRejectsBasicAuthWithoutPassword(t *testing.T) {
	d := setupRegistry(t, nil)

	target := newTarget("a")
	target.Auth = domain.NewBasicAuth("user", "")
	_, err := d.reg.Register(context.Background(), target)

	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, d.reg.List(domain.TargetFilter{}))
}

func TestRegistry_Load(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTargetRepository(ctrl)
	secrets := mocks.NewMockSecretRepository(ctrl)
	enc := newTestEncryption(t)
	d := setupRegistry(t, repo)
	d.reg.signer = NewHMACSigner(secrets, enc, zerolog.Nop())
	ctx := context.Background()

	sealed, err := enc.Encrypt("persisted-secret")
	require.NoError(t, err)

	stored := []domain.Target{
		{ID: "t1", URL: "https://a.example.com", Event: "a", Method: "POST", Status: domain.TargetStatusActive, Signing: true, SigningVersion: "v1"},
		{ID: "t2", URL: "https://b.example.com", Event: "a", Method: "POST", Status: domain.TargetStatusSuspended},
	}
	repo.EXPECT().ListLive(ctx).Return(stored, nil)
	secrets.EXPECT().Get(ctx, "t1").Return(sealed, nil)

	require.NoError(t, d.reg.Load(ctx))

	assert.Len(t, d.reg.List(domain.TargetFilter{}), 2)
	resolved := d.reg.ResolveForEvent("a")
	require.Len(t, resolved, 1)
	assert.Equal(t, "t1", resolved[0].ID)

	header, err := d.reg.signer.Sign("t1", []byte("x"), "v1")
	require.NoError(t, err)
	assert.NoError(t, VerifySignature("persisted-secret", header, []byte("x"), 0, time.Now()))
}

func TestRegistry_LoadWithoutRepository(t *testing.T) {
	d := setupRegistry(t, nil)
	assert.NoError(t, d.reg.Load(context.Background()))
}
