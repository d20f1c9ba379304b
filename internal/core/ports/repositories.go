package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"event-dispatcher/internal/core/domain"
)

// TargetRepository persists targets. Disabled targets are kept as history and
// excluded from ListLive.
type TargetRepository interface {
	Create(ctx context.Context, target *domain.Target) error
	Update(ctx context.Context, target *domain.Target) error
	ListLive(ctx context.Context) ([]domain.Target, error)
}

// SecretRepository persists sealed signing secrets.
type SecretRepository interface {
	Save(ctx context.Context, targetID string, sealed string) error
	// Get returns "" when no secret is stored.
	Get(ctx context.Context, targetID string) (string, error)
	Delete(ctx context.Context, targetID string) error
}

// DeliveryLogRepository persists delivery attempts.
type DeliveryLogRepository interface {
	Create(ctx context.Context, log *domain.DeliveryLog) error
	ListByTarget(ctx context.Context, targetID string, limit int) ([]domain.DeliveryLog, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
