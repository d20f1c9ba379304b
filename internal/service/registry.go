package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry implements ports.Registry. Reads take a shared lock on the target
// map; administrative writes are serialized by writeMu so persistence and
// secret provisioning happen outside the map lock.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*domain.Target
	writeMu sync.Mutex

	repo     ports.TargetRepository // optional
	signer   ports.Signer
	limiter  ports.RateLimiter
	stats    ports.StatsTracker
	notifier ports.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewRegistry creates a registry. repo may be nil for a purely in-memory
// registry.
func NewRegistry(
	repo ports.TargetRepository,
	signer ports.Signer,
	limiter ports.RateLimiter,
	stats ports.StatsTracker,
	notifier ports.Notifier,
	log zerolog.Logger,
) *Registry {
	return &Registry{
		targets:  make(map[string]*domain.Target),
		repo:     repo,
		signer:   signer,
		limiter:  limiter,
		stats:    stats,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Register validates and stores a new active target. The signing secret, if
// any, is only ever returned here and from RotateSecret.
func (r *Registry) Register(ctx context.Context, target domain.Target) (domain.Registration, error) {
	t := target.Clone()
	t.Normalize()
	if err := t.Validate(); err != nil {
		return domain.Registration{}, err
	}

	now := r.now().UTC()
	t.ID = uuid.NewString()
	t.Status = domain.TargetStatusActive
	t.CreatedAt = now
	t.UpdatedAt = now

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var secret string
	if t.Signing {
		var err error
		if secret, err = r.signer.Provision(ctx, t.ID); err != nil {
			return domain.Registration{}, err
		}
	}

	if r.repo != nil {
		if err := r.repo.Create(ctx, &t); err != nil {
			if t.Signing {
				_ = r.signer.Discard(ctx, t.ID)
			}
			return domain.Registration{}, apperror.ErrDatabaseError(fmt.Errorf("create target: %w", err))
		}
	}

	r.store(&t)

	r.log.Info().
		Str("target_id", t.ID).
		Str("event", t.Event).
		Str("url", t.URL).
		Bool("signing", t.Signing).
		Msg("target registered")
	r.publish(domain.NotifyRegistered, &t)

	return domain.Registration{ID: t.ID, Secret: secret}, nil
}

// Unregister disables the target and releases its secret, rate-limit window
// and stats. Unknown ids are a no-op.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	t, ok := r.targets[id]
	if ok {
		delete(r.targets, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	removed := t.Clone()
	removed.Status = domain.TargetStatusDisabled
	removed.UpdatedAt = r.now().UTC()

	if r.repo != nil {
		if err := r.repo.Update(ctx, &removed); err != nil {
			r.log.Warn().Err(err).Str("target_id", id).Msg("failed to persist target removal")
		}
	}
	if removed.Signing {
		if err := r.signer.Discard(ctx, id); err != nil {
			r.log.Warn().Err(err).Str("target_id", id).Msg("failed to discard signing secret")
		}
	}
	if err := r.limiter.Reset(ctx, id); err != nil {
		r.log.Warn().Err(err).Str("target_id", id).Msg("failed to reset rate limit window")
	}
	r.stats.Discard(id)

	r.log.Info().Str("target_id", id).Msg("target unregistered")
	r.publish(domain.NotifyUnregistered, &removed)
	return nil
}

// Update merges patch into the target. On validation failure nothing is
// applied.
func (r *Registry) Update(ctx context.Context, id string, patch domain.TargetPatch) (domain.Target, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.Get(id)
	if err != nil {
		return domain.Target{}, err
	}

	next, err := current.Apply(patch)
	if err != nil {
		return domain.Target{}, err
	}
	if err := next.Validate(); err != nil {
		return domain.Target{}, err
	}
	next.UpdatedAt = r.now().UTC()

	if r.repo != nil {
		if err := r.repo.Update(ctx, &next); err != nil {
			return domain.Target{}, apperror.ErrDatabaseError(fmt.Errorf("update target: %w", err))
		}
	}

	// The signer only changes once the row is written. If it fails, the row
	// goes back to the previous version.
	var signErr error
	switch {
	case next.Signing && !current.Signing:
		_, signErr = r.signer.Provision(ctx, id)
	case !next.Signing && current.Signing:
		signErr = r.signer.Discard(ctx, id)
	}
	if signErr != nil {
		if r.repo != nil {
			if err := r.repo.Update(ctx, &current); err != nil {
				r.log.Error().Err(err).Str("target_id", id).Msg("failed to revert target after signer error")
			}
		}
		return domain.Target{}, signErr
	}

	r.store(&next)

	r.log.Info().Str("target_id", id).Str("status", string(next.Status)).Msg("target updated")
	r.publish(domain.NotifyUpdated, &next)
	return next.Clone(), nil
}

// RotateSecret replaces the signing secret of a signing target.
func (r *Registry) RotateSecret(ctx context.Context, id string) (string, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	t, err := r.Get(id)
	if err != nil {
		return "", err
	}
	if !t.Signing {
		return "", apperror.Validation("signing is disabled for this target")
	}

	secret, err := r.signer.Provision(ctx, id)
	if err != nil {
		return "", err
	}

	r.log.Info().Str("target_id", id).Msg("signing secret rotated")
	r.publish(domain.NotifyUpdated, &t)
	return secret, nil
}

// ResolveForEvent returns active targets subscribed to event, ordered by
// creation time then id.
func (r *Registry) ResolveForEvent(event string) []domain.Target {
	r.mu.RLock()
	out := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		if t.IsActive() && t.Matches(event) {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()

	domain.SortTargets(out)
	return out
}

func (r *Registry) Get(id string) (domain.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[id]
	if !ok {
		return domain.Target{}, apperror.ErrNotFound("Target")
	}
	return t.Clone(), nil
}

func (r *Registry) List(filter domain.TargetFilter) []domain.Target {
	r.mu.RLock()
	out := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		if filter.Match(t) {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()

	domain.SortTargets(out)
	return out
}

// Load restores persisted targets. Targets whose secret cannot be restored
// stay registered; their signed deliveries fail until the secret is rotated.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	targets, err := r.repo.ListLive(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list targets: %w", err))
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	for i := range targets {
		t := targets[i]
		if t.Signing {
			if err := r.signer.Restore(ctx, t.ID); err != nil {
				r.log.Warn().Err(err).Str("target_id", t.ID).Msg("signing secret not restored")
			}
		}
		r.store(&t)
	}

	r.log.Info().Int("count", len(targets)).Msg("targets loaded")
	return nil
}

func (r *Registry) store(t *domain.Target) {
	cp := t.Clone()
	r.mu.Lock()
	r.targets[cp.ID] = &cp
	r.mu.Unlock()
}

func (r *Registry) publish(typ domain.NotificationType, t *domain.Target) {
	cp := t.Clone()
	r.notifier.Publish(domain.Notification{
		Type:      typ,
		TargetID:  t.ID,
		Target:    &cp,
		Timestamp: r.now().UTC(),
	})
}
