package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"fmt"
	"time"

	"event-dispatcher/internal/core/domain"
)

// --- Infrastructure ---

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}

// --- Delivery pipeline ---

// Registry owns the set of delivery targets.
type Registry interface {
	Register(ctx context.Context, target domain.Target) (domain.Registration, error)
	// Unregister is idempotent: unknown ids are a no-op.
	Unregister(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch domain.TargetPatch) (domain.Target, error)
	// ResolveForEvent returns active targets subscribed to event, ordered by
	// creation time then id.
	ResolveForEvent(event string) []domain.Target
	Get(id string) (domain.Target, error)
	List(filter domain.TargetFilter) []domain.Target
	// Load restores persisted targets and their secrets.
	Load(ctx context.Context) error
	RotateSecret(ctx context.Context, id string) (string, error)
}

// Signer owns per-target signing secrets.
type Signer interface {
	Provision(ctx context.Context, targetID string) (string, error)
	Discard(ctx context.Context, targetID string) error
	// Sign returns the signature header value "{version}={hex}, t={unix}".
	Sign(targetID string, payload []byte, version string) (string, error)
	Restore(ctx context.Context, targetID string) error
}

// RateLimiter admits deliveries per target. A nil policy always admits.
type RateLimiter interface {
	Admit(ctx context.Context, targetID string, policy *domain.RateLimitPolicy) (bool, error)
	Reset(ctx context.Context, targetID string) error
}

// WindowDecision is the outcome of a fixed-window check.
type WindowDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// WindowStore keeps fixed-window counters. A window opens on the first hit
// after the previous one elapsed; rejected hits do not count.
type WindowStore interface {
	Hit(ctx context.Context, key string, max int64, window time.Duration, now time.Time) (*WindowDecision, error)
	Reset(ctx context.Context, key string) error
}

// StatsTracker aggregates delivery outcomes per target.
type StatsTracker interface {
	Record(targetID string, success bool, duration time.Duration)
	// Get returns zeroed stats for unknown targets.
	Get(targetID string) domain.DeliveryStats
	Discard(targetID string)
}

// Dispatcher fans events out to matching targets.
type Dispatcher interface {
	// Trigger delivers synchronously and returns one result per resolved
	// target in resolution order. Delivery failures are reported in the
	// results, never as an error.
	Trigger(ctx context.Context, event string, payload any, caller *domain.CallerContext) []domain.DeliveryResult
	// TriggerAsync enqueues the fan-out and returns its job id.
	TriggerAsync(ctx context.Context, event string, payload any, caller *domain.CallerContext) (string, error)
	Close(ctx context.Context) error
}

// Notifier broadcasts lifecycle and delivery notifications.
type Notifier interface {
	// Subscribe returns a channel with the given buffer and a cancel func.
	Subscribe(buffer int) (<-chan domain.Notification, func())
	// Publish never blocks; a full subscriber misses the notification.
	Publish(n domain.Notification)
	Dropped() uint64
	Close()
}

// TransportRequest is a fully built outbound request.
type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// TransportResponse is a 2xx response.
type TransportResponse struct {
	StatusCode int
	Body       []byte
}

// TransportError is returned for non-2xx responses.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Transport performs one outbound call.
type Transport interface {
	Send(ctx context.Context, req TransportRequest) (*TransportResponse, error)
}

// --- Security ---

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// AuthService issues operator tokens for the admin API.
type AuthService interface {
	IssueToken(ctx context.Context, clientID, clientSecret string) (string, time.Time, error)
}

// IdempotencyCache is the Redis-layer idempotency check for async triggers.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// AuditService records administrative actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// DeliveryLogService serves persisted delivery history.
type DeliveryLogService interface {
	ListByTarget(ctx context.Context, targetID string, limit int) ([]domain.DeliveryLog, error)
}
