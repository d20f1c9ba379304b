package service

import (
	"context"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
)

const targetKeyPrefix = "target:"

// TargetRateLimiter implements ports.RateLimiter on top of a WindowStore,
// which is either the in-process WindowLimiter or the shared Redis store.
type TargetRateLimiter struct {
	store ports.WindowStore
	now   func() time.Time
}

func NewTargetRateLimiter(store ports.WindowStore) *TargetRateLimiter {
	return &TargetRateLimiter{store: store, now: time.Now}
}

// Admit applies the target's fixed window. A nil policy always admits.
func (l *TargetRateLimiter) Admit(ctx context.Context, targetID string, policy *domain.RateLimitPolicy) (bool, error) {
	if policy == nil {
		return true, nil
	}
	d, err := l.store.Hit(ctx, targetKeyPrefix+targetID, policy.Max, policy.Window, l.now())
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

func (l *TargetRateLimiter) Reset(ctx context.Context, targetID string) error {
	return l.store.Reset(ctx, targetKeyPrefix+targetID)
}
