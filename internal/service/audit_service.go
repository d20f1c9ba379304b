package service

import (
	"context"
	"sync"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget). Missing ids
// and timestamps are filled in.
func (s *AuditServiceImpl) Log(_ context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Info().
			Str("actor", entry.Actor).
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("ip", entry.IPAddress).
			Msg("audit")

		if s.repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}

// Wait blocks until every pending entry has been written.
func (s *AuditServiceImpl) Wait() {
	s.wg.Wait()
}
